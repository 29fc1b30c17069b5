package serving

import (
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/customresources"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// Response path of the newest package returned by ListModelPackages.
const latestModelPackageARNPath = "ModelPackageSummaryList.0.ModelPackageArn"

// ModelPackageLookupProps configures a ModelPackageLookup.
type ModelPackageLookupProps struct {
	// ModelPackageGroupName is the project-scoped group to search.
	ModelPackageGroupName string

	// Role runs the lookup function.
	Role awsiam.IRole

	// DeploymentID changes the physical ID, forcing a fresh lookup.
	DeploymentID string
}

// ModelPackageLookup resolves the latest approved model package of a group
// at deploy time.
type ModelPackageLookup struct {
	constructs.Construct

	Resource customresources.AwsCustomResource
}

// NewModelPackageLookup creates a lookup.
func NewModelPackageLookup(scope constructs.Construct, id string, props *ModelPackageLookupProps) *ModelPackageLookup {
	l := &ModelPackageLookup{
		Construct: constructs.NewConstruct(scope, jsii.String(id)),
	}

	call := &customresources.AwsSdkCall{
		Service: jsii.String("SageMaker"),
		Action:  jsii.String("listModelPackages"),
		Parameters: map[string]interface{}{
			"ModelPackageGroupName": props.ModelPackageGroupName,
			"ModelApprovalStatus":   approvedStatus,
			"SortBy":                "CreationTime",
			"SortOrder":             "Descending",
			"MaxResults":            1,
		},
		PhysicalResourceId: customresources.PhysicalResourceId_Of(jsii.String(lookupPhysicalID(props))),
		OutputPaths:        jsii.Strings(latestModelPackageARNPath),
	}

	l.Resource = customresources.NewAwsCustomResource(l.Construct, jsii.String("Resource"), &customresources.AwsCustomResourceProps{
		OnCreate:            call,
		OnUpdate:            call,
		Role:                props.Role,
		InstallLatestAwsSdk: jsii.Bool(false),
	})
	return l
}

// ModelPackageARN returns a token resolving to the latest approved package.
func (l *ModelPackageLookup) ModelPackageARN() *string {
	return l.Resource.GetResponseField(jsii.String(latestModelPackageARNPath))
}

func lookupPhysicalID(props *ModelPackageLookupProps) string {
	id := props.ModelPackageGroupName + "-latest-approved"
	if props.DeploymentID != "" {
		id += "-" + props.DeploymentID
	}
	return id
}
