package serving

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/plexusone/mlserving-aws-cdk/config"
)

const roleARN = "arn:aws:iam::123456789012:role/"

// requireNode skips tests that synthesize stacks when the jsii runtime is unavailable.
func requireNode(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node is required to synthesize CDK stacks")
	}
}

func testEnv() *config.Environment {
	return &config.Environment{
		ProjectBucket:     "project-bucket",
		ProjectName:       "churn-prj",
		ProjectID:         "p-abc123",
		CodePipelineARN:   "arn:aws:codepipeline:us-east-1:123456789012:churn-prj-deploy",
		PipelineRoleARN:   roleARN + "SageMakerExecution",
		StudioUserRoleARN: roleARN + "StudioUser",
		LambdaRoleARN:     roleARN + "Lambda",
		GlueRoleARN:       roleARN + "Glue",
		APIGatewayRoleARN: roleARN + "ApiGw",
	}
}

func testModels() []*config.ModelConfig {
	sampling := 20
	churn := NewModelBuilder("churn", "churn-models").
		WithFeatures("tenure", "charges").
		WithSimpleEndpoint("churn-a").
		WithEndpoint(config.EndpointConfig{
			EndpointName:    "churn-b",
			APIPath:         "v2/churn",
			ModelPackageARN: "arn:aws:sagemaker:us-east-1:123456789012:model-package/churn-prj-churn-models/3",
			DataCapture:     &config.DataCaptureConfig{Enabled: true, SamplingPercentage: &sampling},
		}).
		WithBatchTransform(config.TransformConfig{
			PipelineName: "churn-nightly",
			Schedule:     "@daily",
			CrawlOutput:  true,
		}).
		Build()
	fraud := NewModelBuilder("fraud", "fraud-models").
		WithSimpleEndpoint("fraud-a").
		Build()
	return []*config.ModelConfig{churn, fraud}
}

func synth(t *testing.T, build func(app awscdk.App) *ServingStack) (*ServingStack, assertions.Template) {
	t.Helper()
	requireNode(t)
	app := NewApp()
	stack := build(app)
	return stack, assertions.Template_FromStack(stack.Stack, nil)
}

func TestServingStack(t *testing.T) {
	stack, template := synth(t, func(app awscdk.App) *ServingStack {
		return NewStackBuilder("churn-serving").
			WithEnvironment(testEnv()).
			WithModels(testModels()...).
			WithLogger(zaptest.NewLogger(t)).
			Build(app)
	})

	require.Len(t, stack.Redeploys, 2)
	require.Len(t, stack.Endpoints, 3)
	require.Len(t, stack.Transforms, 1)
	require.Len(t, stack.Lookups, 2)
	require.NotNil(t, stack.GlueDatabase)

	template.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::SageMaker::Model"), jsii.Number(3))
	template.ResourceCountIs(jsii.String("AWS::SageMaker::EndpointConfig"), jsii.Number(3))
	template.ResourceCountIs(jsii.String("AWS::SageMaker::Endpoint"), jsii.Number(3))
	template.ResourceCountIs(jsii.String("AWS::SageMaker::Pipeline"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Glue::Database"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Glue::Crawler"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("Custom::AWS"), jsii.Number(2))
	// Two redeploy rules and one schedule.
	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(3))
	// Root GET, three endpoint routes and one batch trigger.
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::Method"), jsii.Number(5))

	template.HasResourceProperties(jsii.String("AWS::ApiGateway::RestApi"), map[string]interface{}{
		"Name": "churn-prj-api",
		"EndpointConfiguration": map[string]interface{}{
			"Types": []interface{}{"REGIONAL"},
		},
		"Tags": assertions.Match_ArrayWith(&[]interface{}{
			map[string]interface{}{"Key": TagProjectID, "Value": "p-abc123"},
		}),
	})

	template.HasResourceProperties(jsii.String("AWS::SageMaker::Endpoint"), map[string]interface{}{
		"EndpointName": "fraud-a",
	})

	template.HasResourceProperties(jsii.String("AWS::SageMaker::Pipeline"), map[string]interface{}{
		"PipelineName": "churn-nightly",
		"RoleArn":      roleARN + "SageMakerExecution",
	})

	template.HasResourceProperties(jsii.String("AWS::Glue::Crawler"), map[string]interface{}{
		"Name": "churn-nightly-output",
		"Role": roleARN + "Glue",
		"Targets": map[string]interface{}{
			"S3Targets": []interface{}{
				map[string]interface{}{"Path": "s3://project-bucket/batch/churn-nightly/output"},
			},
		},
	})
}

func TestServingStack_RedeployRule(t *testing.T) {
	_, template := synth(t, func(app awscdk.App) *ServingStack {
		return NewStackBuilder("churn-serving").
			WithEnvironment(testEnv()).
			WithModels(testModels()...).
			Build(app)
	})

	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]interface{}{
		"EventPattern": map[string]interface{}{
			"source":      []interface{}{"aws.sagemaker"},
			"detail-type": []interface{}{"SageMaker Model Package State Change"},
			"detail": map[string]interface{}{
				"ModelPackageGroupName": []interface{}{"churn-prj-churn-models"},
				"ModelApprovalStatus":   []interface{}{"Approved"},
			},
		},
		"Targets": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"RoleArn": roleARN + "Lambda",
			}),
		}),
	})
}

func TestServingStack_Schedule(t *testing.T) {
	_, template := synth(t, func(app awscdk.App) *ServingStack {
		return NewStackBuilder("churn-serving").
			WithEnvironment(testEnv()).
			WithModels(testModels()...).
			Build(app)
	})

	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]interface{}{
		"ScheduleExpression": "cron(0 0 * * ? *)",
		"State":              "ENABLED",
	})
}

func TestServingStack_BatchTrigger(t *testing.T) {
	_, template := synth(t, func(app awscdk.App) *ServingStack {
		return NewStackBuilder("churn-serving").
			WithEnvironment(testEnv()).
			WithModels(testModels()...).
			Build(app)
	})

	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]interface{}{
		"HttpMethod": "POST",
		"Integration": assertions.Match_ObjectLike(&map[string]interface{}{
			"Type":                  "AWS",
			"IntegrationHttpMethod": "POST",
			"Uri": map[string]interface{}{
				"Fn::Join": []interface{}{"", assertions.Match_ArrayWith(&[]interface{}{
					":api.sagemaker:action/StartPipelineExecution",
				})},
			},
			"RequestParameters": map[string]interface{}{
				"integration.request.header.X-Amz-Target": "'SageMaker.StartPipelineExecution'",
				"integration.request.header.Content-Type": "'application/x-amz-json-1.1'",
			},
		}),
	})
}

func TestServingStack_DataCapture(t *testing.T) {
	_, template := synth(t, func(app awscdk.App) *ServingStack {
		return NewStackBuilder("churn-serving").
			WithEnvironment(testEnv()).
			WithModels(testModels()...).
			Build(app)
	})

	template.HasResourceProperties(jsii.String("AWS::SageMaker::EndpointConfig"), map[string]interface{}{
		"DataCaptureConfig": map[string]interface{}{
			"EnableCapture":             true,
			"InitialSamplingPercentage": 20,
			"DestinationS3Uri":          "s3://project-bucket/data-capture/churn-b",
		},
	})
}

func TestServingStack_EmptyConfiguration(t *testing.T) {
	stack, template := synth(t, func(app awscdk.App) *ServingStack {
		return NewStackBuilder("empty-serving").
			WithEnvironment(testEnv()).
			Build(app)
	})

	require.Empty(t, stack.Redeploys)
	require.Nil(t, stack.GlueDatabase)
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::Method"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]interface{}{
		"HttpMethod": "GET",
	})
	template.ResourceCountIs(jsii.String("AWS::SageMaker::Endpoint"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(0))
}

func TestNewStackFromDir(t *testing.T) {
	requireNode(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "models/fraud.model.json", []byte(`{
		"model_name": "fraud",
		"model_package_group_name": "fraud-models",
		"features_names": ["amount"],
		"endpoints": [{"endpoint_name": "fraud-a"}],
		"batch_transforms": [{"pipeline_name": "fraud-weekly", "api_trigger": false}]
	}`), 0o644))

	app := NewApp()
	stack, err := NewStackFromDir(app, "fraud-serving", "models",
		WithFs(fs),
		WithEnvironment(testEnv()),
		WithDeploymentID("build-42"),
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.Len(t, stack.Endpoints, 1)
	require.Len(t, stack.Transforms, 1)
	require.Nil(t, stack.Transforms["BatchTransform-fraud-weekly"].Method)

	template := assertions.Template_FromStack(stack.Stack, nil)
	// Root GET and the endpoint route; the transform has no API trigger.
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::Method"), jsii.Number(2))
	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(1))
}

func TestNewStackFromDir_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "models/bad.model.json", []byte(`{"model_name": "bad"}`), 0o644))

	testCases := map[string]struct {
		dir     string
		env     *config.Environment
		wantErr string
	}{
		"invalid environment": {
			dir:     "models",
			env:     &config.Environment{ProjectName: "p"},
			wantErr: "invalid environment",
		},
		"missing directory": {
			dir:     "nowhere",
			env:     testEnv(),
			wantErr: "reading configuration directory",
		},
		"invalid model": {
			dir:     "models",
			env:     testEnv(),
			wantErr: `missing required key "endpoints"`,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			// Loading fails before any construct is declared, so no scope is touched.
			_, err := NewStackFromDir(nil, "serving", tc.dir, WithFs(fs), WithEnvironment(tc.env))
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestStackBuilder_Validate(t *testing.T) {
	err := NewStackBuilder("s").Validate()
	require.ErrorContains(t, err, "environment is required")

	err = NewStackBuilder("s").
		WithEnvironment(testEnv()).
		WithModel(NewModelBuilder("", "g").Build()).
		Validate()
	require.ErrorContains(t, err, "model_name must not be empty")

	p, err := NewStackBuilder("s").
		WithEnvironment(testEnv()).
		WithModels(testModels()...).
		Plan()
	require.NoError(t, err)
	require.Equal(t, 2, p.Counts().Models)
}

func TestStackBuilder_DuplicateRoute(t *testing.T) {
	b := NewStackBuilder("s").
		WithEnvironment(testEnv()).
		WithModel(NewModelBuilder("shared", "g").
			WithEndpoint(config.EndpointConfig{EndpointName: "a", APIPath: "shared"}).
			WithEndpoint(config.EndpointConfig{EndpointName: "b", APIPath: "shared"}).
			Build())

	_, err := b.Plan()
	require.ErrorContains(t, err, "duplicate API routes: POST /shared")
	require.PanicsWithValue(t, fmt.Sprintf("invalid stack configuration: %v", err), func() {
		b.Build(nil)
	})
}

func TestLookupPhysicalID(t *testing.T) {
	testCases := map[string]struct {
		deploymentID string
		want         string
	}{
		"without deployment ID": {want: "g-latest-approved"},
		"with deployment ID":    {deploymentID: "42", want: "g-latest-approved-42"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := lookupPhysicalID(&ModelPackageLookupProps{ModelPackageGroupName: "g", DeploymentID: tc.deploymentID})
			require.Equal(t, tc.want, got)
		})
	}
}

func TestStartExecutionTemplate(t *testing.T) {
	require.Equal(t,
		`{"PipelineName": "churn-nightly", "ClientRequestToken": "$context.requestId"}`,
		startExecutionTemplate("churn-nightly"))
}
