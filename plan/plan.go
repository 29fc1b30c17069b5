// Package plan turns a deployment environment and model descriptors into a
// tree of resource descriptors. Building a plan has no side effects and does
// not touch the CDK; the serving package renders a plan into constructs.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plexusone/mlserving-aws-cdk/config"
)

// Plan is the full set of resources a serving stack declares.
type Plan struct {
	Shared   Shared      `yaml:"shared"`
	Models   []ModelPlan `yaml:"models"`
	Warnings []string    `yaml:"warnings,omitempty"`
}

// Shared holds project-wide resources resolved once per stack.
type Shared struct {
	ProjectName       string `yaml:"project_name"`
	ProjectID         string `yaml:"project_id"`
	BucketName        string `yaml:"bucket_name"`
	APIName           string `yaml:"api_name"`
	CodePipelineARN   string `yaml:"codepipeline_arn"`
	PipelineRoleARN   string `yaml:"pipeline_role_arn"`
	StudioUserRoleARN string `yaml:"studio_user_role_arn"`
	LambdaRoleARN     string `yaml:"lambda_role_arn"`
	GlueRoleARN       string `yaml:"glue_role_arn"`
	APIGatewayRoleARN string `yaml:"api_gateway_role_arn"`

	// GlueDatabaseName is set when at least one transform crawls its output.
	GlueDatabaseName string `yaml:"glue_database_name,omitempty"`
}

// ModelPlan holds the resources declared for one model descriptor.
type ModelPlan struct {
	ModelName             string          `yaml:"model_name"`
	Source                string          `yaml:"source,omitempty"`
	ModelPackageGroupName string          `yaml:"model_package_group_name"`
	FeaturesNames         []string        `yaml:"features_names"`
	Lookup                *LookupPlan     `yaml:"lookup,omitempty"`
	Redeploy              RedeployPlan    `yaml:"redeploy"`
	Endpoints             []EndpointPlan  `yaml:"endpoints"`
	Transforms            []TransformPlan `yaml:"batch_transforms"`
}

// LookupPlan resolves the latest approved model package of a group at deploy time.
type LookupPlan struct {
	ID                    string `yaml:"id"`
	ModelPackageGroupName string `yaml:"model_package_group_name"`
}

// RedeployPlan describes the trigger reacting to package approvals.
type RedeployPlan struct {
	ID                    string `yaml:"id"`
	ModelPackageGroupName string `yaml:"model_package_group_name"`
}

// EndpointPlan describes one real-time endpoint and its API route.
type EndpointPlan struct {
	ID                    string                `yaml:"id"`
	ModelPackageGroupName string                `yaml:"model_package_group_name"`
	Config                config.EndpointConfig `yaml:"config"`
}

// TransformPlan describes one batch transform pipeline.
type TransformPlan struct {
	ID                    string                 `yaml:"id"`
	ModelPackageGroupName string                 `yaml:"model_package_group_name"`
	FeaturesNames         []string               `yaml:"features_names"`
	Config                config.TransformConfig `yaml:"config"`

	// Schedule is the EventBridge expression, empty when unscheduled.
	Schedule string `yaml:"schedule,omitempty"`
}

// Counts summarizes the number of per-model resources in a plan.
type Counts struct {
	Models     int
	Redeploys  int
	Endpoints  int
	Transforms int
}

// Construct ID prefixes.
const (
	RedeployIDPrefix  = "RedeployConstruct-"
	EndpointIDPrefix  = "Endpoint-"
	TransformIDPrefix = "BatchTransform-"
	LookupIDPrefix    = "ModelPackageLookup-"
)

// TriggerPathPrefix is the API path under which pipeline triggers live.
const TriggerPathPrefix = "batch"

// EndpointRoute returns the API route invoking an endpoint.
func EndpointRoute(apiPath string) string {
	return "POST /" + apiPath
}

// TriggerRoute returns the API route starting a pipeline execution.
func TriggerRoute(pipelineName string) string {
	return "POST /" + TriggerPathPrefix + "/" + pipelineName
}

// PackageGroupName derives the project-scoped model package group name.
func PackageGroupName(projectName, groupName string) string {
	return projectName + "-" + groupName
}

// APIName returns the name of the shared REST API.
func APIName(projectName string) string {
	return projectName + "-api"
}

// GlueDatabaseName returns the Glue database used by output crawlers.
// Glue database names may not contain hyphens.
func GlueDatabaseName(projectName string) string {
	return strings.ToLower(strings.ReplaceAll(projectName, "-", "_")) + "_serving"
}

// Build creates the plan for env and models. Models are planned in the order
// given; LoadModelConfigs returns them sorted by file name.
func Build(env *config.Environment, models []*config.ModelConfig) (*Plan, error) {
	if env == nil {
		return nil, fmt.Errorf("environment is required")
	}

	p := &Plan{
		Shared: Shared{
			ProjectName:       env.ProjectName,
			ProjectID:         env.ProjectID,
			BucketName:        env.ProjectBucket,
			APIName:           APIName(env.ProjectName),
			CodePipelineARN:   env.CodePipelineARN,
			PipelineRoleARN:   env.PipelineRoleARN,
			StudioUserRoleARN: env.StudioUserRoleARN,
			LambdaRoleARN:     env.LambdaRoleARN,
			GlueRoleARN:       env.GlueRoleARN,
			APIGatewayRoleARN: env.APIGatewayRoleARN,
		},
		Models: make([]ModelPlan, 0, len(models)),
	}

	ids := newIDSet("construct IDs")
	routes := newIDSet("API routes")
	groups := make(map[string][]string)
	for _, m := range models {
		mp, err := buildModel(env.ProjectName, m)
		if err != nil {
			return nil, err
		}
		source := sourceOf(m)
		ids.claim(mp.Redeploy.ID, source)
		if mp.Lookup != nil {
			ids.claim(mp.Lookup.ID, source)
		}
		for _, e := range mp.Endpoints {
			ids.claim(e.ID, source)
			routes.claim(EndpointRoute(e.Config.APIPath), source)
		}
		for _, t := range mp.Transforms {
			ids.claim(t.ID, source)
			if *t.Config.APITrigger {
				routes.claim(TriggerRoute(t.Config.PipelineName), source)
			}
			if t.Config.CrawlOutput {
				p.Shared.GlueDatabaseName = GlueDatabaseName(env.ProjectName)
			}
		}
		groups[mp.ModelPackageGroupName] = append(groups[mp.ModelPackageGroupName], mp.ModelName)
		p.Models = append(p.Models, mp)
	}
	if err := ids.err(); err != nil {
		return nil, err
	}
	if err := routes.err(); err != nil {
		return nil, err
	}

	p.Warnings = groupWarnings(groups)
	return p, nil
}

func buildModel(projectName string, m *config.ModelConfig) (ModelPlan, error) {
	group := PackageGroupName(projectName, m.ModelPackageGroupName)
	mp := ModelPlan{
		ModelName:             m.ModelName,
		Source:                m.Source,
		ModelPackageGroupName: group,
		FeaturesNames:         append([]string(nil), m.FeaturesNames...),
		Redeploy: RedeployPlan{
			ID:                    RedeployIDPrefix + m.ModelName,
			ModelPackageGroupName: group,
		},
		Endpoints:  make([]EndpointPlan, 0, len(m.Endpoints)),
		Transforms: make([]TransformPlan, 0, len(m.BatchTransforms)),
	}

	needsLookup := false
	for _, e := range m.Endpoints {
		conf := e.WithDefaults()
		if conf.ModelPackageARN == "" {
			needsLookup = true
		}
		mp.Endpoints = append(mp.Endpoints, EndpointPlan{
			ID:                    EndpointIDPrefix + conf.EndpointName,
			ModelPackageGroupName: group,
			Config:                conf,
		})
	}

	for _, t := range m.BatchTransforms {
		conf := t.WithDefaults()
		if conf.ModelPackageARN == "" {
			needsLookup = true
		}
		tp := TransformPlan{
			ID:                    TransformIDPrefix + conf.PipelineName,
			ModelPackageGroupName: group,
			FeaturesNames:         append([]string(nil), m.FeaturesNames...),
			Config:                conf,
		}
		if conf.Schedule != "" {
			schedule, err := config.AWSSchedule(conf.Schedule)
			if err != nil {
				return ModelPlan{}, fmt.Errorf("%s: pipeline %s: %w", m.Source, conf.PipelineName, err)
			}
			tp.Schedule = schedule
		}
		mp.Transforms = append(mp.Transforms, tp)
	}

	if needsLookup {
		mp.Lookup = &LookupPlan{
			ID:                    LookupIDPrefix + m.ModelName,
			ModelPackageGroupName: group,
		}
	}
	return mp, nil
}

// sourceOf names where m was declared, for models built in code.
func sourceOf(m *config.ModelConfig) string {
	if m.Source != "" {
		return m.Source
	}
	return fmt.Sprintf("model config %q", m.ModelName)
}

// Counts returns the number of per-model resources in p.
func (p *Plan) Counts() Counts {
	c := Counts{Models: len(p.Models)}
	for _, m := range p.Models {
		c.Redeploys++
		c.Endpoints += len(m.Endpoints)
		c.Transforms += len(m.Transforms)
	}
	return c
}

// groupWarnings reports model package groups shared by more than one model.
func groupWarnings(groups map[string][]string) []string {
	var warnings []string
	for group, models := range groups {
		if len(models) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"model package group %s is used by %d models (%s); each approval triggers every redeploy",
				group, len(models), strings.Join(models, ", ")))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// idSet detects names declared more than once in one scope, such as the
// construct IDs of the stack or the routes of the REST API.
type idSet struct {
	kind       string
	owners     map[string]string
	duplicates []string
}

func newIDSet(kind string) *idSet {
	return &idSet{kind: kind, owners: make(map[string]string)}
}

func (s *idSet) claim(id, source string) {
	if prev, ok := s.owners[id]; ok {
		s.duplicates = append(s.duplicates, fmt.Sprintf("%s (declared in %s and %s)", id, prev, source))
		return
	}
	s.owners[id] = source
}

func (s *idSet) err() error {
	if len(s.duplicates) == 0 {
		return nil
	}
	return fmt.Errorf("duplicate %s: %s", s.kind, strings.Join(s.duplicates, "; "))
}
