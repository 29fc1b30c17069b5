package serving

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"go.uber.org/zap"

	"github.com/plexusone/mlserving-aws-cdk/config"
	"github.com/plexusone/mlserving-aws-cdk/plan"
)

// StackBuilder provides a fluent interface for building serving stacks.
type StackBuilder struct {
	stackName    string
	description  string
	env          *config.Environment
	models       []*config.ModelConfig
	tags         map[string]string
	deploymentID string
	logger       *zap.Logger
}

// NewStackBuilder creates a new stack builder.
func NewStackBuilder(stackName string) *StackBuilder {
	return &StackBuilder{
		stackName: stackName,
		models:    []*config.ModelConfig{},
		tags:      make(map[string]string),
		logger:    zap.NewNop(),
	}
}

// WithDescription sets the stack description.
func (b *StackBuilder) WithDescription(description string) *StackBuilder {
	b.description = description
	return b
}

// WithEnvironment sets the project environment.
func (b *StackBuilder) WithEnvironment(env *config.Environment) *StackBuilder {
	b.env = env
	return b
}

// WithModel adds a model to the stack.
func (b *StackBuilder) WithModel(model *config.ModelConfig) *StackBuilder {
	b.models = append(b.models, model)
	return b
}

// WithModels adds multiple models to the stack.
func (b *StackBuilder) WithModels(models ...*config.ModelConfig) *StackBuilder {
	b.models = append(b.models, models...)
	return b
}

// WithTags adds tags to all resources.
func (b *StackBuilder) WithTags(tags map[string]string) *StackBuilder {
	for k, v := range tags {
		b.tags[k] = v
	}
	return b
}

// WithTag adds a single tag.
func (b *StackBuilder) WithTag(key, value string) *StackBuilder {
	b.tags[key] = value
	return b
}

// WithDeploymentID sets the value that forces model package lookups to refresh.
func (b *StackBuilder) WithDeploymentID(id string) *StackBuilder {
	b.deploymentID = id
	return b
}

// WithLogger sets the logger used while declaring constructs.
func (b *StackBuilder) WithLogger(logger *zap.Logger) *StackBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Validate checks the environment and every model.
func (b *StackBuilder) Validate() error {
	if b.env == nil {
		return fmt.Errorf("stack %s: environment is required", b.stackName)
	}
	if err := b.env.Validate(); err != nil {
		return err
	}
	for _, m := range b.models {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Plan validates the configuration and builds the resource plan.
func (b *StackBuilder) Plan() (*plan.Plan, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return plan.Build(b.env, b.models)
}

// Build creates the serving stack. It panics on invalid configuration.
func (b *StackBuilder) Build(scope constructs.Construct) *ServingStack {
	p, err := b.Plan()
	if err != nil {
		panic(fmt.Sprintf("invalid stack configuration: %v", err))
	}
	for _, w := range p.Warnings {
		b.logger.Warn(w)
	}

	props := &ServingStackProps{
		Plan:         p,
		DeploymentID: b.deploymentID,
		Logger:       b.logger,
		StackProps: awscdk.StackProps{
			StackName: jsii.String(b.stackName),
			Tags:      convertTags(b.tags),
		},
	}
	if b.description != "" {
		props.Description = jsii.String(b.description)
	}
	return NewServingStack(scope, b.stackName, props)
}

// ModelBuilder provides a fluent interface for building model configurations.
type ModelBuilder struct {
	config config.ModelConfig
}

// NewModelBuilder creates a new model builder. groupName is the model package
// group name without the project prefix.
func NewModelBuilder(name, groupName string) *ModelBuilder {
	return &ModelBuilder{
		config: config.ModelConfig{
			ModelName:             name,
			ModelPackageGroupName: groupName,
			FeaturesNames:         []string{},
			Endpoints:             []config.EndpointConfig{},
			BatchTransforms:       []config.TransformConfig{},
		},
	}
}

// WithFeatures sets the feature names passed to batch transforms.
func (b *ModelBuilder) WithFeatures(names ...string) *ModelBuilder {
	b.config.FeaturesNames = append(b.config.FeaturesNames, names...)
	return b
}

// WithEndpoint adds a real-time endpoint.
func (b *ModelBuilder) WithEndpoint(endpoint config.EndpointConfig) *ModelBuilder {
	b.config.Endpoints = append(b.config.Endpoints, endpoint)
	return b
}

// WithSimpleEndpoint adds an endpoint with default settings.
func (b *ModelBuilder) WithSimpleEndpoint(name string) *ModelBuilder {
	return b.WithEndpoint(config.EndpointConfig{EndpointName: name})
}

// WithBatchTransform adds a batch transform pipeline.
func (b *ModelBuilder) WithBatchTransform(transform config.TransformConfig) *ModelBuilder {
	b.config.BatchTransforms = append(b.config.BatchTransforms, transform)
	return b
}

// WithScheduledTransform adds a batch transform run on schedule.
func (b *ModelBuilder) WithScheduledTransform(pipelineName, schedule string) *ModelBuilder {
	return b.WithBatchTransform(config.TransformConfig{PipelineName: pipelineName, Schedule: schedule})
}

// Build returns the model configuration.
func (b *ModelBuilder) Build() *config.ModelConfig {
	c := b.config
	return &c
}

// NewApp creates a new CDK app with common settings.
func NewApp() awscdk.App {
	return awscdk.NewApp(&awscdk.AppProps{
		Context: &map[string]interface{}{
			"@aws-cdk/core:newStyleStackSynthesis": true,
		},
	})
}

// Synth synthesizes the CDK app to CloudFormation templates.
func Synth(app awscdk.App) {
	app.Synth(nil)
}

// convertTags converts a map to CDK tags.
func convertTags(tags map[string]string) *map[string]*string {
	if len(tags) == 0 {
		return nil
	}
	result := make(map[string]*string)
	for k, v := range tags {
		result[k] = jsii.String(v)
	}
	return &result
}
