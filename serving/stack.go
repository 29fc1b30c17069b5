// Package serving provides AWS CDK constructs that serve SageMaker models
// behind API Gateway, redeploy them on approval, and run batch transforms.
package serving

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsglue"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"go.uber.org/zap"

	"github.com/plexusone/mlserving-aws-cdk/plan"
)

// Tag keys applied to every resource of the stack.
const (
	TagProjectName = "sagemaker:project-name"
	TagProjectID   = "sagemaker:project-id"
)

// ServingStackProps configures a ServingStack.
type ServingStackProps struct {
	awscdk.StackProps

	// Plan is the resource plan to render. Required.
	Plan *plan.Plan

	// DeploymentID is folded into model package lookups so a new value
	// forces them to resolve the latest approved package again.
	DeploymentID string

	// Logger receives debug output while constructs are declared.
	Logger *zap.Logger
}

// Roles holds the project IAM roles imported by ARN.
type Roles struct {
	SageMakerExecution awsiam.IRole
	StudioUser         awsiam.IRole
	APIGateway         awsiam.IRole
	Glue               awsiam.IRole
	Lambda             awsiam.IRole
}

// ServingStack is a CDK stack that serves every configured model.
type ServingStack struct {
	awscdk.Stack

	// Plan is the rendered resource plan.
	Plan *plan.Plan

	// Roles are the imported project roles.
	Roles Roles

	// Bucket is the imported project bucket.
	Bucket awss3.IBucket

	// API is the shared REST API.
	API awsapigateway.RestApi

	// Pipeline is the project CodePipeline started by redeploy triggers.
	Pipeline awscodepipeline.IPipeline

	// GlueDatabase catalogs crawled transform output, nil when nothing is crawled.
	GlueDatabase awsglue.CfnDatabase

	// Per-model constructs keyed by construct ID.
	Lookups    map[string]*ModelPackageLookup
	Redeploys  map[string]*Redeploy
	Endpoints  map[string]*ModelEndpoint
	Transforms map[string]*BatchTransform

	deploymentID string
	logger       *zap.Logger
}

// NewServingStack creates a serving stack from props.Plan.
func NewServingStack(scope constructs.Construct, id string, props *ServingStackProps) *ServingStack {
	if props == nil || props.Plan == nil {
		panic("serving stack requires a plan")
	}
	logger := props.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sprops := props.StackProps
	if sprops.Description == nil {
		sprops.Description = jsii.String(fmt.Sprintf("Model serving for SageMaker project %s", props.Plan.Shared.ProjectName))
	}
	stack := awscdk.NewStack(scope, jsii.String(id), &sprops)

	s := &ServingStack{
		Stack:        stack,
		Plan:         props.Plan,
		Lookups:      make(map[string]*ModelPackageLookup),
		Redeploys:    make(map[string]*Redeploy),
		Endpoints:    make(map[string]*ModelEndpoint),
		Transforms:   make(map[string]*BatchTransform),
		deploymentID: props.DeploymentID,
		logger:       logger.With(zap.String("stack", id)),
	}

	s.addTags()
	s.importRoles()
	s.importBucket()
	s.importPipeline()
	s.createRestAPI()
	s.createGlueDatabase()

	for _, m := range s.Plan.Models {
		s.createModel(m)
	}

	s.addOutputs()

	counts := s.Plan.Counts()
	s.logger.Debug("declared serving stack",
		zap.Int("models", counts.Models),
		zap.Int("endpoints", counts.Endpoints),
		zap.Int("transforms", counts.Transforms))
	return s
}

// addTags tags every resource with the owning SageMaker project.
func (s *ServingStack) addTags() {
	shared := s.Plan.Shared
	tags := awscdk.Tags_Of(s.Stack)
	tags.Add(jsii.String(TagProjectName), jsii.String(shared.ProjectName), nil)
	tags.Add(jsii.String(TagProjectID), jsii.String(shared.ProjectID), nil)
}

// importRoles imports the project roles. The stack never modifies them.
func (s *ServingStack) importRoles() {
	shared := s.Plan.Shared
	s.Roles = Roles{
		SageMakerExecution: s.importRole("SageMakerExecutionRole", shared.PipelineRoleARN),
		StudioUser:         s.importRole("SageMakerStudioUserRole", shared.StudioUserRoleARN),
		APIGateway:         s.importRole("ApiGwRole", shared.APIGatewayRoleARN),
		Glue:               s.importRole("GlueRole", shared.GlueRoleARN),
		Lambda:             s.importRole("LambdaRole", shared.LambdaRoleARN),
	}
}

func (s *ServingStack) importRole(id, roleARN string) awsiam.IRole {
	return awsiam.Role_FromRoleArn(s.Stack, jsii.String(id), jsii.String(roleARN), &awsiam.FromRoleArnOptions{
		Mutable: jsii.Bool(false),
	})
}

func (s *ServingStack) importBucket() {
	s.Bucket = awss3.Bucket_FromBucketName(s.Stack, jsii.String("ProjectBucket"), jsii.String(s.Plan.Shared.BucketName))
}

func (s *ServingStack) importPipeline() {
	s.Pipeline = awscodepipeline.Pipeline_FromPipelineArn(s.Stack, jsii.String("ProjectPipeline"),
		jsii.String(s.Plan.Shared.CodePipelineARN))
}

// createRestAPI declares the shared regional REST API. The root GET method
// keeps the API deployable when no model declares a route.
func (s *ServingStack) createRestAPI() {
	name := s.Plan.Shared.APIName
	s.API = awsapigateway.NewRestApi(s.Stack, jsii.String(name), &awsapigateway.RestApiProps{
		RestApiName: jsii.String(name),
		Description: jsii.String(fmt.Sprintf("API Endpoint for %s", s.Plan.Shared.ProjectName)),
		EndpointConfiguration: &awsapigateway.EndpointConfiguration{
			Types: &[]awsapigateway.EndpointType{awsapigateway.EndpointType_REGIONAL},
		},
	})
	s.API.Root().AddMethod(jsii.String("GET"), nil, nil)
}

// createGlueDatabase declares the database shared by output crawlers.
func (s *ServingStack) createGlueDatabase() {
	name := s.Plan.Shared.GlueDatabaseName
	if name == "" {
		return
	}
	s.GlueDatabase = awsglue.NewCfnDatabase(s.Stack, jsii.String("GlueDatabase"), &awsglue.CfnDatabaseProps{
		CatalogId: s.Stack.Account(),
		DatabaseInput: &awsglue.CfnDatabase_DatabaseInputProperty{
			Name:        jsii.String(name),
			Description: jsii.String(fmt.Sprintf("Batch transform output of %s", s.Plan.Shared.ProjectName)),
		},
	})
}

// createModel declares the lookup, redeploy trigger, endpoints and batch
// transforms of one model, in that order.
func (s *ServingStack) createModel(m plan.ModelPlan) {
	logger := s.logger.With(zap.String("model", m.ModelName), zap.String("group", m.ModelPackageGroupName))

	var lookup *ModelPackageLookup
	if m.Lookup != nil {
		lookup = NewModelPackageLookup(s.Stack, m.Lookup.ID, &ModelPackageLookupProps{
			ModelPackageGroupName: m.Lookup.ModelPackageGroupName,
			Role:                  s.Roles.Lambda,
			DeploymentID:          s.deploymentID,
		})
		s.Lookups[m.Lookup.ID] = lookup
		logger.Debug("declared model package lookup", zap.String("id", m.Lookup.ID))
	}

	s.Redeploys[m.Redeploy.ID] = NewRedeploy(s.Stack, m.Redeploy.ID, &RedeployProps{
		ModelPackageGroupName: m.Redeploy.ModelPackageGroupName,
		Pipeline:              s.Pipeline,
		EventRole:             s.Roles.Lambda,
	})
	logger.Debug("declared redeploy trigger", zap.String("id", m.Redeploy.ID))

	for _, e := range m.Endpoints {
		s.Endpoints[e.ID] = NewModelEndpoint(s.Stack, e.ID, &ModelEndpointProps{
			Plan:            e,
			ModelPackageARN: modelPackageARN(e.Config.ModelPackageARN, lookup),
			ExecutionRole:   s.Roles.SageMakerExecution,
			APIGatewayRole:  s.Roles.APIGateway,
			API:             s.API,
			Bucket:          s.Bucket,
		})
		logger.Debug("declared endpoint", zap.String("id", e.ID), zap.String("path", e.Config.APIPath))
	}

	for _, t := range m.Transforms {
		s.Transforms[t.ID] = NewBatchTransform(s.Stack, t.ID, &BatchTransformProps{
			Plan:            t,
			ModelPackageARN: modelPackageARN(t.Config.ModelPackageARN, lookup),
			ExecutionRole:   s.Roles.SageMakerExecution,
			EventRole:       s.Roles.Lambda,
			GlueRole:        s.Roles.Glue,
			APIGatewayRole:  s.Roles.APIGateway,
			Bucket:          s.Bucket,
			API:             s.API,
			GlueDatabase:    s.GlueDatabase,
		})
		logger.Debug("declared batch transform", zap.String("id", t.ID), zap.String("schedule", t.Schedule))
	}
}

// modelPackageARN prefers a pinned ARN over the lookup result.
func modelPackageARN(pinned string, lookup *ModelPackageLookup) *string {
	if pinned != "" {
		return jsii.String(pinned)
	}
	if lookup == nil {
		panic("model package lookup missing for unpinned artifact")
	}
	return lookup.ModelPackageARN()
}

// addOutputs adds CloudFormation outputs.
func (s *ServingStack) addOutputs() {
	awscdk.NewCfnOutput(s.Stack, jsii.String("ApiUrl"), &awscdk.CfnOutputProps{
		Value:       s.API.Url(),
		Description: jsii.String("Base URL of the serving API"),
	})

	for _, m := range s.Plan.Models {
		for _, e := range m.Endpoints {
			awscdk.NewCfnOutput(s.Stack, jsii.String(fmt.Sprintf("%s-Name", e.ID)), &awscdk.CfnOutputProps{
				Value:       s.Endpoints[e.ID].Endpoint.AttrEndpointName(),
				Description: jsii.String(fmt.Sprintf("SageMaker endpoint of model %s", m.ModelName)),
			})
		}
		for _, t := range m.Transforms {
			awscdk.NewCfnOutput(s.Stack, jsii.String(fmt.Sprintf("%s-Pipeline", t.ID)), &awscdk.CfnOutputProps{
				Value:       jsii.String(t.Config.PipelineName),
				Description: jsii.String(fmt.Sprintf("Batch transform pipeline of model %s", m.ModelName)),
			})
		}
	}

	counts := s.Plan.Counts()
	awscdk.NewCfnOutput(s.Stack, jsii.String("ModelCount"), &awscdk.CfnOutputProps{
		Value:       jsii.String(fmt.Sprintf("%d", counts.Models)),
		Description: jsii.String("Number of served models"),
	})
}
