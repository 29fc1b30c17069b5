package serving

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsglue"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssagemaker"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/plexusone/mlserving-aws-cdk/plan"
)

// BatchTriggerPathPrefix is the API path under which pipeline triggers live.
const BatchTriggerPathPrefix = plan.TriggerPathPrefix

// BatchTransformProps configures a BatchTransform.
type BatchTransformProps struct {
	// Plan describes the pipeline. Its config already carries defaults.
	Plan plan.TransformPlan

	// ModelPackageARN is the default package of the pipeline; may be a token.
	ModelPackageARN *string

	// ExecutionRole runs the pipeline steps.
	ExecutionRole awsiam.IRole

	// EventRole is assumed by EventBridge for scheduled executions.
	EventRole awsiam.IRole

	// GlueRole runs the output crawler.
	GlueRole awsiam.IRole

	// APIGatewayRole is assumed by API Gateway to start executions.
	APIGatewayRole awsiam.IRole

	// Bucket holds transform input and output.
	Bucket awss3.IBucket

	// API receives the trigger route when enabled.
	API awsapigateway.IRestApi

	// GlueDatabase receives crawled tables. Required when the output is crawled.
	GlueDatabase awsglue.CfnDatabase
}

// BatchTransform is a SageMaker pipeline running a batch transform job,
// with optional schedule, output crawler, and API trigger.
type BatchTransform struct {
	constructs.Construct

	// Name is the SageMaker pipeline name.
	Name string

	Pipeline awssagemaker.CfnPipeline

	// Schedule is nil when the pipeline is not scheduled.
	Schedule awsevents.CfnRule

	// Crawler is nil unless the output is crawled.
	Crawler awsglue.CfnCrawler

	// Method is nil unless the API trigger is enabled.
	Method awsapigateway.Method
}

// NewBatchTransform creates a batch transform pipeline.
func NewBatchTransform(scope constructs.Construct, id string, props *BatchTransformProps) *BatchTransform {
	t := props.Plan
	t.Config = t.Config.WithDefaults()
	b := &BatchTransform{
		Construct: constructs.NewConstruct(scope, jsii.String(id)),
		Name:      t.Config.PipelineName,
	}

	definition, err := plan.PipelineDefinition(t,
		*props.Bucket.BucketName(), *props.ExecutionRole.RoleArn(), *props.ModelPackageARN)
	if err != nil {
		panic(fmt.Sprintf("invalid batch transform %s: %v", b.Name, err))
	}

	b.Pipeline = awssagemaker.NewCfnPipeline(b.Construct, jsii.String("Pipeline"), &awssagemaker.CfnPipelineProps{
		PipelineName:        jsii.String(b.Name),
		PipelineDisplayName: jsii.String(b.Name),
		PipelineDescription: jsii.String(fmt.Sprintf("Batch transform for %s", t.ModelPackageGroupName)),
		RoleArn:             props.ExecutionRole.RoleArn(),
		PipelineDefinition: map[string]interface{}{
			"PipelineDefinitionBody": definition,
		},
	})

	if t.Schedule != "" {
		b.createSchedule(props, t.Schedule)
	}
	if t.Config.CrawlOutput {
		b.createCrawler(props, t.Config.OutputPrefix)
	}
	if t.Config.APITrigger != nil && *t.Config.APITrigger {
		b.Method = b.addTrigger(props)
	}
	return b
}

// PipelineARN returns the ARN of the pipeline. SageMaker lowercases
// pipeline names in ARNs.
func (b *BatchTransform) PipelineARN() *string {
	return awscdk.Stack_Of(b.Construct).FormatArn(&awscdk.ArnComponents{
		Service:      jsii.String("sagemaker"),
		Resource:     jsii.String("pipeline"),
		ResourceName: jsii.String(strings.ToLower(b.Name)),
	})
}

// createSchedule starts the pipeline on an EventBridge schedule.
func (b *BatchTransform) createSchedule(props *BatchTransformProps, expression string) {
	b.Schedule = awsevents.NewCfnRule(b.Construct, jsii.String("Schedule"), &awsevents.CfnRuleProps{
		Description:        jsii.String(fmt.Sprintf("Scheduled batch transform %s", b.Name)),
		ScheduleExpression: jsii.String(expression),
		State:              jsii.String("ENABLED"),
		Targets: &[]interface{}{
			&awsevents.CfnRule_TargetProperty{
				Id:      jsii.String(b.Name),
				Arn:     b.PipelineARN(),
				RoleArn: props.EventRole.RoleArn(),
				SageMakerPipelineParameters: &awsevents.CfnRule_SageMakerPipelineParametersProperty{
					PipelineParameterList: &[]interface{}{
						&awsevents.CfnRule_SageMakerPipelineParameterProperty{
							Name:  jsii.String(plan.ParamModelPackageARN),
							Value: props.ModelPackageARN,
						},
					},
				},
			},
		},
	})
	b.Schedule.AddDependency(b.Pipeline)
}

// createCrawler catalogs the transform output in the shared Glue database.
func (b *BatchTransform) createCrawler(props *BatchTransformProps, outputPrefix string) {
	if props.GlueDatabase == nil {
		panic(fmt.Sprintf("batch transform %s crawls its output but no Glue database was given", b.Name))
	}
	b.Crawler = awsglue.NewCfnCrawler(b.Construct, jsii.String("OutputCrawler"), &awsglue.CfnCrawlerProps{
		Name:         jsii.String(b.Name + "-output"),
		Role:         props.GlueRole.RoleArn(),
		DatabaseName: props.GlueDatabase.Ref(),
		TablePrefix:  jsii.String(strings.ReplaceAll(b.Name, "-", "_") + "_"),
		Targets: &awsglue.CfnCrawler_TargetsProperty{
			S3Targets: &[]interface{}{
				&awsglue.CfnCrawler_S3TargetProperty{
					Path: props.Bucket.S3UrlForObject(jsii.String(outputPrefix)),
				},
			},
		},
	})
	b.Crawler.AddDependency(props.GlueDatabase)
}

// addTrigger exposes POST /batch/<pipeline> which starts an execution.
func (b *BatchTransform) addTrigger(props *BatchTransformProps) awsapigateway.Method {
	integration := awsapigateway.NewAwsIntegration(&awsapigateway.AwsIntegrationProps{
		Service:               jsii.String("api.sagemaker"),
		Action:                jsii.String("StartPipelineExecution"),
		IntegrationHttpMethod: jsii.String("POST"),
		Options: &awsapigateway.IntegrationOptions{
			CredentialsRole:     props.APIGatewayRole,
			PassthroughBehavior: awsapigateway.PassthroughBehavior_NEVER,
			RequestParameters: &map[string]*string{
				"integration.request.header.X-Amz-Target": jsii.String("'SageMaker.StartPipelineExecution'"),
				"integration.request.header.Content-Type": jsii.String("'application/x-amz-json-1.1'"),
			},
			RequestTemplates: &map[string]*string{
				"application/json": jsii.String(startExecutionTemplate(b.Name)),
			},
			IntegrationResponses: &[]*awsapigateway.IntegrationResponse{
				{StatusCode: jsii.String("200")},
			},
		},
	})

	path := BatchTriggerPathPrefix + "/" + b.Name
	method := props.API.Root().ResourceForPath(jsii.String(path)).AddMethod(jsii.String("POST"), integration,
		&awsapigateway.MethodOptions{
			MethodResponses: &[]*awsapigateway.MethodResponse{
				{StatusCode: jsii.String("200")},
			},
		})
	method.Node().AddDependency(b.Pipeline)
	return method
}

// startExecutionTemplate maps a trigger request to a StartPipelineExecution
// call. The request ID makes retried requests idempotent.
func startExecutionTemplate(pipelineName string) string {
	return fmt.Sprintf(`{"PipelineName": "%s", "ClientRequestToken": "$context.requestId"}`, pipelineName)
}
