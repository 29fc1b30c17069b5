package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/spf13/cobra"

	"github.com/plexusone/mlserving-aws-cdk/serving"
)

type synthOpts struct {
	*globalOpts
	configDir string
	stackName string
}

// stackProps targets the account and region the CDK CLI resolved, if any.
func (o *synthOpts) stackProps(projectName string) awscdk.StackProps {
	name := o.stackName
	if name == "" {
		name = projectName + "-serving"
	}
	props := awscdk.StackProps{StackName: jsii.String(name)}
	account, region := os.Getenv("CDK_DEFAULT_ACCOUNT"), os.Getenv("CDK_DEFAULT_REGION")
	if account != "" || region != "" {
		props.Env = &awscdk.Environment{}
		if account != "" {
			props.Env.Account = jsii.String(account)
		}
		if region != "" {
			props.Env.Region = jsii.String(region)
		}
	}
	return props
}

func (o *synthOpts) Execute(cmd *cobra.Command) error {
	env, err := o.environment(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := o.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	props := o.stackProps(env.ProjectName)
	opts := []serving.LoadOption{
		serving.WithFs(o.fs),
		serving.WithEnvironment(env),
		serving.WithLogger(logger),
		serving.WithStackProps(props),
	}

	app := serving.NewApp()
	if cmd.Flags().Changed("config-dir") {
		_, err = serving.NewStackFromDir(app, *props.StackName, o.configDir, opts...)
	} else {
		_, err = serving.NewStackFromContext(app, *props.StackName, opts...)
	}
	if err != nil {
		return err
	}
	serving.Synth(app)
	return nil
}

func buildSynthCmd(g *globalOpts) *cobra.Command {
	opts := &synthOpts{globalOpts: g}
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize the serving stack. Used as the app command in cdk.json.",
		Long: `Synthesize the serving stack.

The configuration directory defaults to the "configDir" CDK context value,
then to ./models. The "deploymentId" context value forces model package
lookups to resolve the latest approved package again.`,
		Example: `
  cdk.json:
  { "app": "go run github.com/plexusone/mlserving-aws-cdk/cmd/serving synth" }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Execute(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.configDir, "config-dir", defaultConfigDir, "Directory of *.model.json files (overrides CDK context)")
	cmd.Flags().StringVar(&opts.stackName, "stack-name", "", "Stack name (default: <project>-serving)")
	return cmd
}
