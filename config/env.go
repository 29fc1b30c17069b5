// Package config loads the deployment environment and the per-model
// serving descriptors that drive the serving stack.
package config

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/spf13/viper"
)

// Environment variable names read at stack-construction time.
const (
	EnvProjectBucket     = "PROJECT_BUCKET"
	EnvProjectName       = "SAGEMAKER_PROJECT_NAME"
	EnvProjectID         = "SAGEMAKER_PROJECT_ID"
	EnvCodePipelineARN   = "CODEPIPELINE_ARN"
	EnvPipelineRoleARN   = "SAGEMAKER_PIPELINE_ROLE_ARN"
	EnvStudioUserRoleARN = "SAGEMAKER_STUDIO_USER_ROLE_ARN"
	EnvLambdaRoleARN     = "LAMBDA_ROLE_ARN"
	EnvGlueRoleARN       = "GLUE_ROLE_ARN"
	EnvAPIGatewayRoleARN = "API_GATEWAY_ROLE_ARN"
)

// EnvironmentKeys lists every variable the serving stack requires, in a stable order.
var EnvironmentKeys = []string{
	EnvProjectBucket,
	EnvProjectName,
	EnvProjectID,
	EnvCodePipelineARN,
	EnvPipelineRoleARN,
	EnvStudioUserRoleARN,
	EnvLambdaRoleARN,
	EnvGlueRoleARN,
	EnvAPIGatewayRoleARN,
}

// Environment holds the project-level settings shared by every model.
type Environment struct {
	// ProjectBucket is the name of the existing S3 bucket owned by the project.
	ProjectBucket string

	// ProjectName prefixes model package group names and the API name.
	ProjectName string

	// ProjectID is the SageMaker project ID, used for tagging.
	ProjectID string

	// CodePipelineARN is the pipeline started when a model package is approved.
	CodePipelineARN string

	// PipelineRoleARN is the SageMaker execution role for models and pipelines.
	PipelineRoleARN string

	// StudioUserRoleARN is the SageMaker Studio user role.
	StudioUserRoleARN string

	// LambdaRoleARN is used by EventBridge targets and custom resource handlers.
	LambdaRoleARN string

	// GlueRoleARN is assumed by Glue crawlers over batch output.
	GlueRoleARN string

	// APIGatewayRoleARN is assumed by API Gateway integrations calling SageMaker.
	APIGatewayRoleARN string
}

// LoadEnvironment reads the environment from process environment variables.
func LoadEnvironment() (*Environment, error) {
	return EnvironmentFromViper(NewEnvironmentViper())
}

// NewEnvironmentViper returns a viper instance bound to every environment key.
// Callers may layer defaults (for example values fetched from Secrets Manager)
// with SetDefault; real environment variables always win.
func NewEnvironmentViper() *viper.Viper {
	v := viper.New()
	for _, key := range EnvironmentKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// EnvironmentFromViper builds and validates an Environment from v.
func EnvironmentFromViper(v *viper.Viper) (*Environment, error) {
	env := &Environment{
		ProjectBucket:     strings.TrimSpace(v.GetString(EnvProjectBucket)),
		ProjectName:       strings.TrimSpace(v.GetString(EnvProjectName)),
		ProjectID:         strings.TrimSpace(v.GetString(EnvProjectID)),
		CodePipelineARN:   strings.TrimSpace(v.GetString(EnvCodePipelineARN)),
		PipelineRoleARN:   strings.TrimSpace(v.GetString(EnvPipelineRoleARN)),
		StudioUserRoleARN: strings.TrimSpace(v.GetString(EnvStudioUserRoleARN)),
		LambdaRoleARN:     strings.TrimSpace(v.GetString(EnvLambdaRoleARN)),
		GlueRoleARN:       strings.TrimSpace(v.GetString(EnvGlueRoleARN)),
		APIGatewayRoleARN: strings.TrimSpace(v.GetString(EnvAPIGatewayRoleARN)),
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Values returns the environment as a map keyed by variable name.
func (e *Environment) Values() map[string]string {
	return map[string]string{
		EnvProjectBucket:     e.ProjectBucket,
		EnvProjectName:       e.ProjectName,
		EnvProjectID:         e.ProjectID,
		EnvCodePipelineARN:   e.CodePipelineARN,
		EnvPipelineRoleARN:   e.PipelineRoleARN,
		EnvStudioUserRoleARN: e.StudioUserRoleARN,
		EnvLambdaRoleARN:     e.LambdaRoleARN,
		EnvGlueRoleARN:       e.GlueRoleARN,
		EnvAPIGatewayRoleARN: e.APIGatewayRoleARN,
	}
}

// Validate reports every missing variable and malformed ARN in one error.
func (e *Environment) Validate() error {
	verr := &ValidationError{Source: "environment"}
	values := e.Values()
	for _, key := range EnvironmentKeys {
		if values[key] == "" {
			verr.add("%s is not set", key)
		}
	}

	roles := []string{
		EnvPipelineRoleARN,
		EnvStudioUserRoleARN,
		EnvLambdaRoleARN,
		EnvGlueRoleARN,
		EnvAPIGatewayRoleARN,
	}
	for _, key := range roles {
		if values[key] == "" {
			continue
		}
		if err := validateARN(values[key], "iam", "role/"); err != nil {
			verr.add("%s: %v", key, err)
		}
	}
	if e.CodePipelineARN != "" {
		if err := validateARN(e.CodePipelineARN, "codepipeline", ""); err != nil {
			verr.add("%s: %v", EnvCodePipelineARN, err)
		}
	}

	return verr.orNil()
}

func validateARN(value, service, resourcePrefix string) error {
	parsed, err := arn.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid ARN %q: %w", value, err)
	}
	if parsed.Service != service {
		return fmt.Errorf("ARN %q has service %q, want %q", value, parsed.Service, service)
	}
	if resourcePrefix != "" && !strings.HasPrefix(parsed.Resource, resourcePrefix) {
		return fmt.Errorf("ARN %q is not a %s resource", value, strings.TrimSuffix(resourcePrefix, "/"))
	}
	return nil
}
