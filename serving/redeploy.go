package serving

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// Model package approval event emitted by SageMaker.
const (
	sageMakerEventSource          = "aws.sagemaker"
	modelPackageStateChangeDetail = "SageMaker Model Package State Change"
	approvedStatus                = "Approved"
)

// RedeployProps configures a Redeploy trigger.
type RedeployProps struct {
	// ModelPackageGroupName is the project-scoped group to watch.
	ModelPackageGroupName string

	// Pipeline is started when a package in the group is approved.
	Pipeline awscodepipeline.IPipeline

	// EventRole is assumed by EventBridge to start the pipeline.
	EventRole awsiam.IRole
}

// Redeploy starts the project deployment pipeline whenever a model package
// in its group is approved.
type Redeploy struct {
	constructs.Construct

	// Rule is the EventBridge rule matching approvals.
	Rule awsevents.Rule
}

// NewRedeploy creates a redeploy trigger.
func NewRedeploy(scope constructs.Construct, id string, props *RedeployProps) *Redeploy {
	r := &Redeploy{
		Construct: constructs.NewConstruct(scope, jsii.String(id)),
	}

	r.Rule = awsevents.NewRule(r.Construct, jsii.String("ModelApproved"), &awsevents.RuleProps{
		Description:  jsii.String(fmt.Sprintf("Redeploy models of %s on approval", props.ModelPackageGroupName)),
		EventPattern: ApprovalEventPattern(props.ModelPackageGroupName),
		Targets: &[]awsevents.IRuleTarget{
			awseventstargets.NewCodePipeline(props.Pipeline, &awseventstargets.CodePipelineTargetOptions{
				EventRole: props.EventRole,
			}),
		},
	})
	return r
}

// ApprovalEventPattern matches approvals of packages in groupName.
func ApprovalEventPattern(groupName string) *awsevents.EventPattern {
	return &awsevents.EventPattern{
		Source:     jsii.Strings(sageMakerEventSource),
		DetailType: jsii.Strings(modelPackageStateChangeDetail),
		Detail: &map[string]interface{}{
			"ModelPackageGroupName": []string{groupName},
			"ModelApprovalStatus":   []string{approvedStatus},
		},
	}
}
