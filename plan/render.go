package plan

import (
	"bytes"
	"fmt"

	"github.com/xlab/treeprint"
	"gopkg.in/yaml.v3"
)

// Tree renders p as an indented resource tree for terminal output.
func (p *Plan) Tree() string {
	root := treeprint.NewWithRoot(fmt.Sprintf("project %s (%s)", p.Shared.ProjectName, p.Shared.ProjectID))

	shared := root.AddBranch("shared")
	shared.AddMetaNode("bucket", p.Shared.BucketName)
	shared.AddMetaNode("rest-api", p.Shared.APIName+" [GET /]")
	if p.Shared.GlueDatabaseName != "" {
		shared.AddMetaNode("glue-database", p.Shared.GlueDatabaseName)
	}

	for _, m := range p.Models {
		model := root.AddMetaBranch("model", fmt.Sprintf("%s -> %s", m.ModelName, m.ModelPackageGroupName))
		if m.Lookup != nil {
			model.AddMetaNode("lookup", m.Lookup.ID)
		}
		model.AddMetaNode("redeploy", m.Redeploy.ID)
		for _, e := range m.Endpoints {
			model.AddMetaNode("endpoint", fmt.Sprintf("%s [%s x%d, POST /%s]",
				e.ID, e.Config.InstanceType, derefInt(e.Config.InitialInstanceCount), e.Config.APIPath))
		}
		for _, t := range m.Transforms {
			desc := fmt.Sprintf("%s [%s x%d]", t.ID, t.Config.InstanceType, derefInt(t.Config.InstanceCount))
			node := model.AddMetaBranch("transform", desc)
			if t.Schedule != "" {
				node.AddMetaNode("schedule", t.Schedule)
			}
			if t.Config.APITrigger != nil && *t.Config.APITrigger {
				node.AddMetaNode("api", "POST /batch/"+t.Config.PipelineName)
			}
			if t.Config.CrawlOutput {
				node.AddMetaNode("crawler", t.Config.OutputPrefix)
			}
		}
	}
	return root.String()
}

// YAML renders p as a YAML document.
func (p *Plan) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	return buf.Bytes(), nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
