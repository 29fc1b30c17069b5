// serving synthesizes, inspects and deploys the model serving stack.
//
// Usage:
//
//	serving <command> [flags]
//
// Examples:
//
//	serving plan                          # Print the resources declared for ./models
//	serving validate --config-dir conf    # Check env vars and model descriptors
//	serving deploy --dry-run              # Show the CloudFormation diff
//	serving env push .env                 # Store the project env vars in Secrets Manager
//	serving plan --env-secret my/env      # Read env vars from that secret
//
// Install:
//
//	go install github.com/plexusone/mlserving-aws-cdk/cmd/serving@latest
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/plexusone/mlserving-aws-cdk/config"
	"github.com/plexusone/mlserving-aws-cdk/internal/term/log"
)

// Global setting keys, bound to persistent flags and environment variables.
const (
	regionKey    = "region"
	envSecretKey = "env-secret"
	verboseKey   = "verbose"
)

const (
	defaultRegion    = "us-east-1"
	defaultConfigDir = "models"

	// envSecretEnvVar carries --env-secret to the CDK app started by deploy.
	envSecretEnvVar = "SERVING_ENV_SECRET"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		log.DisableColor()
	}
	cobra.EnableCommandSorting = false
}

func main() {
	cmd := buildRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Errorln(err.Error())
		os.Exit(1)
	}
}

// globalOpts holds settings and clients shared by every command.
type globalOpts struct {
	fs       afero.Fs
	settings *viper.Viper

	// secrets overrides the Secrets Manager client, for tests.
	secrets secretsAPI
}

func newGlobalOpts() *globalOpts {
	settings := viper.New()
	settings.SetDefault(regionKey, defaultRegion)
	_ = settings.BindEnv(regionKey, "AWS_REGION", "AWS_DEFAULT_REGION")
	_ = settings.BindEnv(envSecretKey, envSecretEnvVar)
	return &globalOpts{
		fs:       afero.NewOsFs(),
		settings: settings,
	}
}

func buildRootCmd() *cobra.Command {
	return newRootCmd(newGlobalOpts())
}

func newRootCmd(g *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serving",
		Short: "Serve SageMaker models behind API Gateway with AWS CDK.",
		Example: `
  Prints the resources declared for the descriptors in ./models.
  /code $ serving plan

  Deploys the stack, reading the project environment from Secrets Manager.
  /code $ serving deploy --env-secret churn-prj/serving-env`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(log.OutputWriter)
	cmd.SetErr(log.DiagnosticWriter)

	flags := cmd.PersistentFlags()
	flags.String(regionKey, "", "AWS region (default: AWS_REGION or us-east-1)")
	flags.String(envSecretKey, "", "Secrets Manager secret holding the project environment variables")
	flags.BoolP(verboseKey, "v", false, "Show debug output")
	for _, key := range []string{regionKey, envSecretKey, verboseKey} {
		_ = g.settings.BindPFlag(key, flags.Lookup(key))
	}

	cmd.AddCommand(buildPlanCmd(g))
	cmd.AddCommand(buildValidateCmd(g))
	cmd.AddCommand(buildSynthCmd(g))
	cmd.AddCommand(buildDeployCmd(g))
	cmd.AddCommand(buildEnvCmd(g))
	return cmd
}

func (g *globalOpts) region() string {
	return g.settings.GetString(regionKey)
}

func (g *globalOpts) envSecret() string {
	return g.settings.GetString(envSecretKey)
}

func (g *globalOpts) logger() (*zap.Logger, error) {
	if !g.settings.GetBool(verboseKey) {
		return zap.NewNop(), nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

func (g *globalOpts) awsConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(g.region()))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

func (g *globalOpts) secretsClient(ctx context.Context) (secretsAPI, error) {
	if g.secrets != nil {
		return g.secrets, nil
	}
	cfg, err := g.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// environment reads the project environment. Values stored in the
// --env-secret secret are defaults; process environment variables win.
func (g *globalOpts) environment(ctx context.Context) (*config.Environment, error) {
	v := config.NewEnvironmentViper()
	if name := g.envSecret(); name != "" {
		client, err := g.secretsClient(ctx)
		if err != nil {
			return nil, err
		}
		values, err := fetchEnvironmentSecret(ctx, client, name)
		if err != nil {
			return nil, err
		}
		for k, val := range values {
			v.SetDefault(k, val)
		}
	}
	return config.EnvironmentFromViper(v)
}
