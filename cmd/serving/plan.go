package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexusone/mlserving-aws-cdk/internal/term/log"
	"github.com/plexusone/mlserving-aws-cdk/plan"
)

// Output formats of the plan command.
const (
	outputTree = "tree"
	outputYAML = "yaml"
)

type planOpts struct {
	*globalOpts
	configDir string
	output    string
}

func (o *planOpts) Validate() error {
	switch o.output {
	case outputTree, outputYAML:
		return nil
	default:
		return fmt.Errorf("output %q is not one of %s, %s", o.output, outputTree, outputYAML)
	}
}

func (o *planOpts) load(cmd *cobra.Command) (*plan.Plan, error) {
	env, err := o.environment(cmd.Context())
	if err != nil {
		return nil, err
	}
	p, err := plan.Load(o.fs, env, o.configDir)
	if err != nil {
		return nil, err
	}
	for _, w := range p.Warnings {
		log.Warningf("%s\n", w)
	}
	return p, nil
}

func (o *planOpts) Execute(cmd *cobra.Command) error {
	p, err := o.load(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if o.output == outputYAML {
		body, err := p.YAML()
		if err != nil {
			return err
		}
		_, err = out.Write(body)
		return err
	}
	_, err = fmt.Fprint(out, p.Tree())
	return err
}

func buildPlanCmd(g *globalOpts) *cobra.Command {
	opts := &planOpts{globalOpts: g}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resources the serving stack declares, without synthesizing it.",
		Example: `
  Prints the resource tree for ./models.
  /code $ serving plan

  Prints the plan as YAML.
  /code $ serving plan --output yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return opts.Execute(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.configDir, "config-dir", defaultConfigDir, "Directory of *.model.json files")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTree, "Output format: tree or yaml")
	return cmd
}

func buildValidateCmd(g *globalOpts) *cobra.Command {
	opts := &planOpts{globalOpts: g}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the project environment and every model descriptor.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.load(cmd)
			if err != nil {
				return err
			}
			c := p.Counts()
			log.Successf("Configuration is valid: %d models, %d endpoints, %d batch transforms\n",
				c.Models, c.Endpoints, c.Transforms)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configDir, "config-dir", defaultConfigDir, "Directory of *.model.json files")
	return cmd
}
