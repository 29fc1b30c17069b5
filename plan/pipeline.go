package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SageMaker pipeline definition schema version.
const pipelineDefinitionVersion = "2020-12-01"

// Pipeline parameter names exposed by every batch transform pipeline.
const (
	ParamInputDataURL    = "InputDataUrl"
	ParamOutputDataURL   = "OutputDataUrl"
	ParamModelPackageARN = "ModelPackageArn"
	ParamFeaturesNames   = "FeaturesNames"
	ParamInstanceType    = "TransformInstanceType"
	ParamInstanceCount   = "TransformInstanceCount"
)

const (
	createModelStep = "CreateModel"
	transformStep   = "BatchTransform"
)

type pipelineDefinition struct {
	Version    string              `json:"Version"`
	Metadata   map[string]string   `json:"Metadata"`
	Parameters []pipelineParameter `json:"Parameters"`
	Steps      []pipelineStep      `json:"Steps"`
}

type pipelineParameter struct {
	Name         string      `json:"Name"`
	Type         string      `json:"Type"`
	DefaultValue interface{} `json:"DefaultValue,omitempty"`
}

type pipelineStep struct {
	Name      string      `json:"Name"`
	Type      string      `json:"Type"`
	DependsOn []string    `json:"DependsOn,omitempty"`
	Arguments interface{} `json:"Arguments"`
}

// get references a parameter or step property inside a pipeline definition.
type get struct {
	Get string `json:"Get"`
}

func param(name string) get {
	return get{Get: "Parameters." + name}
}

// S3URI returns the s3:// URI of prefix in bucket.
func S3URI(bucket, prefix string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, strings.TrimPrefix(prefix, "/"))
}

// PipelineDefinition renders the SageMaker pipeline definition for a batch
// transform: a CreateModel step from the model package followed by a
// transform job. roleARN and modelPackageARN may be CDK tokens; they are
// embedded verbatim and resolved at synthesis.
func PipelineDefinition(t TransformPlan, bucket, roleARN, modelPackageARN string) (string, error) {
	conf := t.Config
	if conf.InstanceCount == nil {
		conf = conf.WithDefaults()
	}

	params := []pipelineParameter{
		{Name: ParamInputDataURL, Type: "String", DefaultValue: S3URI(bucket, conf.InputPrefix)},
		{Name: ParamOutputDataURL, Type: "String", DefaultValue: S3URI(bucket, conf.OutputPrefix)},
		{Name: ParamModelPackageARN, Type: "String", DefaultValue: modelPackageARN},
		{Name: ParamFeaturesNames, Type: "String", DefaultValue: strings.Join(t.FeaturesNames, ",")},
		{Name: ParamInstanceType, Type: "String", DefaultValue: conf.InstanceType},
		{Name: ParamInstanceCount, Type: "Integer", DefaultValue: *conf.InstanceCount},
	}

	transformArgs := map[string]interface{}{
		"ModelName": get{Get: "Steps." + createModelStep + ".ModelName"},
		"TransformInput": map[string]interface{}{
			"DataSource": map[string]interface{}{
				"S3DataSource": map[string]interface{}{
					"S3DataType": "S3Prefix",
					"S3Uri":      param(ParamInputDataURL),
				},
			},
			"ContentType": conf.ContentType,
			"SplitType":   conf.SplitType,
		},
		"TransformOutput": map[string]interface{}{
			"S3OutputPath": param(ParamOutputDataURL),
			"Accept":       conf.Accept,
			"AssembleWith": conf.AssembleWith,
		},
		"TransformResources": map[string]interface{}{
			"InstanceType":  param(ParamInstanceType),
			"InstanceCount": param(ParamInstanceCount),
		},
		"Environment": map[string]interface{}{
			"FEATURES_NAMES": param(ParamFeaturesNames),
		},
	}
	if conf.MaxPayloadMB != nil {
		transformArgs["MaxPayloadInMB"] = *conf.MaxPayloadMB
	}

	def := pipelineDefinition{
		Version:    pipelineDefinitionVersion,
		Metadata:   map[string]string{"ModelPackageGroupName": t.ModelPackageGroupName},
		Parameters: params,
		Steps: []pipelineStep{
			{
				Name: createModelStep,
				Type: "Model",
				Arguments: map[string]interface{}{
					"ExecutionRoleArn": roleARN,
					"PrimaryContainer": map[string]interface{}{
						"ModelPackageName": param(ParamModelPackageARN),
					},
				},
			},
			{
				Name:      transformStep,
				Type:      "Transform",
				DependsOn: []string{createModelStep},
				Arguments: transformArgs,
			},
		},
	}

	body, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("marshaling pipeline definition for %s: %w", conf.PipelineName, err)
	}
	return string(body), nil
}
