package serving

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssagemaker"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/plexusone/mlserving-aws-cdk/plan"
)

// ModelEndpointProps configures a ModelEndpoint.
type ModelEndpointProps struct {
	// Plan describes the endpoint. Its config already carries defaults.
	Plan plan.EndpointPlan

	// ModelPackageARN is the package served by the endpoint; may be a token.
	ModelPackageARN *string

	// ExecutionRole is assumed by SageMaker to host the model.
	ExecutionRole awsiam.IRole

	// APIGatewayRole is assumed by API Gateway to invoke the endpoint.
	APIGatewayRole awsiam.IRole

	// API receives a POST route to the endpoint.
	API awsapigateway.IRestApi

	// Bucket receives captured requests when data capture is enabled.
	Bucket awss3.IBucket
}

// ModelEndpoint is a real-time SageMaker endpoint exposed on the shared API.
type ModelEndpoint struct {
	constructs.Construct

	// Name is the SageMaker endpoint name.
	Name string

	Model          awssagemaker.CfnModel
	EndpointConfig awssagemaker.CfnEndpointConfig
	Endpoint       awssagemaker.CfnEndpoint

	// Method is the POST method routed to the endpoint.
	Method awsapigateway.Method
}

// NewModelEndpoint creates an endpoint and its API route.
func NewModelEndpoint(scope constructs.Construct, id string, props *ModelEndpointProps) *ModelEndpoint {
	conf := props.Plan.Config.WithDefaults()
	e := &ModelEndpoint{
		Construct: constructs.NewConstruct(scope, jsii.String(id)),
		Name:      conf.EndpointName,
	}

	e.Model = awssagemaker.NewCfnModel(e.Construct, jsii.String("Model"), &awssagemaker.CfnModelProps{
		ExecutionRoleArn: props.ExecutionRole.RoleArn(),
		PrimaryContainer: &awssagemaker.CfnModel_ContainerDefinitionProperty{
			ModelPackageName: props.ModelPackageARN,
		},
	})

	endpointConfigProps := &awssagemaker.CfnEndpointConfigProps{
		ProductionVariants: &[]interface{}{
			&awssagemaker.CfnEndpointConfig_ProductionVariantProperty{
				VariantName:          jsii.String(conf.VariantName),
				ModelName:            e.Model.AttrModelName(),
				InstanceType:         jsii.String(conf.InstanceType),
				InitialInstanceCount: jsii.Number(float64(*conf.InitialInstanceCount)),
				InitialVariantWeight: jsii.Number(*conf.InitialVariantWeight),
			},
		},
	}
	if dc := conf.DataCapture; dc != nil && dc.Enabled {
		endpointConfigProps.DataCaptureConfig = &awssagemaker.CfnEndpointConfig_DataCaptureConfigProperty{
			EnableCapture:             jsii.Bool(true),
			InitialSamplingPercentage: jsii.Number(float64(*dc.SamplingPercentage)),
			DestinationS3Uri:          props.Bucket.S3UrlForObject(jsii.String(dc.DestinationPrefix)),
			CaptureOptions: &[]interface{}{
				&awssagemaker.CfnEndpointConfig_CaptureOptionProperty{CaptureMode: jsii.String("Input")},
				&awssagemaker.CfnEndpointConfig_CaptureOptionProperty{CaptureMode: jsii.String("Output")},
			},
		}
	}
	e.EndpointConfig = awssagemaker.NewCfnEndpointConfig(e.Construct, jsii.String("EndpointConfig"), endpointConfigProps)

	e.Endpoint = awssagemaker.NewCfnEndpoint(e.Construct, jsii.String("Endpoint"), &awssagemaker.CfnEndpointProps{
		EndpointName:       jsii.String(conf.EndpointName),
		EndpointConfigName: e.EndpointConfig.AttrEndpointConfigName(),
	})

	e.Method = e.addRoute(props, conf.APIPath)
	return e
}

// addRoute proxies POST /<path> to the endpoint's invocations API.
func (e *ModelEndpoint) addRoute(props *ModelEndpointProps, path string) awsapigateway.Method {
	integration := awsapigateway.NewAwsIntegration(&awsapigateway.AwsIntegrationProps{
		Service:               jsii.String("runtime.sagemaker"),
		Path:                  jsii.String(fmt.Sprintf("endpoints/%s/invocations", e.Name)),
		IntegrationHttpMethod: jsii.String("POST"),
		Options: &awsapigateway.IntegrationOptions{
			CredentialsRole:     props.APIGatewayRole,
			PassthroughBehavior: awsapigateway.PassthroughBehavior_WHEN_NO_MATCH,
			IntegrationResponses: &[]*awsapigateway.IntegrationResponse{
				{StatusCode: jsii.String("200")},
			},
		},
	})

	method := props.API.Root().ResourceForPath(jsii.String(path)).AddMethod(jsii.String("POST"), integration,
		&awsapigateway.MethodOptions{
			MethodResponses: &[]*awsapigateway.MethodResponse{
				{StatusCode: jsii.String("200")},
			},
		})
	method.Node().AddDependency(e.Endpoint)
	return method
}
