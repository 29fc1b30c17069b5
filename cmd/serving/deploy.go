package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/plexusone/mlserving-aws-cdk/internal/term/log"
	"github.com/plexusone/mlserving-aws-cdk/serving"
)

type deployOpts struct {
	*globalOpts
	dryRun        bool
	skipBootstrap bool
	deploymentID  string
}

func (o *deployOpts) Execute(ctx context.Context) error {
	region := o.region()

	log.Headerln("Model Serving Deployment")
	log.Infof("Region: %s\n", region)
	log.Infof("Working directory: %s\n", mustGetwd())
	if o.dryRun {
		log.Infoln("Mode: DRY RUN (no changes will be made)")
	}

	cfg, err := o.awsConfig(ctx)
	if err != nil {
		return err
	}
	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("getting AWS identity: %w", err)
	}
	accountID := *identity.Account
	log.Infof("AWS Account: %s\n\n", accountID)

	if o.skipBootstrap {
		log.Headerln("Step 1: Skipping bootstrap (--skip-bootstrap)")
	} else {
		log.Headerln("Step 1: Bootstrap CDK")
		o.bootstrap(ctx, accountID, region)
	}
	log.Infoln()

	log.Headerln("Step 2: Deploy")
	if err := o.deploy(ctx); err != nil {
		return fmt.Errorf("deploying: %w", err)
	}
	log.Infoln()

	log.Successf("Deployment complete\n")
	if !o.dryRun {
		log.Infoln("To get outputs:")
		log.Infof("  aws cloudformation describe-stacks --region %s --query 'Stacks[0].Outputs' --no-cli-pager\n", region)
	}
	return nil
}

// bootstrap runs cdk bootstrap. A failure usually means the environment is
// already bootstrapped, so it is reported but not returned.
func (o *deployOpts) bootstrap(ctx context.Context, accountID, region string) {
	target := fmt.Sprintf("aws://%s/%s", accountID, region)
	log.Infof("Bootstrap target: %s\n", target)
	if o.dryRun {
		log.Infoln("[DRY RUN] Would run: cdk bootstrap " + target)
		return
	}

	//nolint:gosec // G204: target is built from AWS SDK values (accountID, region), not user input
	cmd := o.cdk(ctx, "bootstrap", target)
	if err := cmd.Run(); err != nil {
		log.Warningf("cdk bootstrap failed (%v); continuing in case the environment is already bootstrapped\n", err)
	}
}

// deploy runs cdk deploy, or cdk diff on a dry run.
func (o *deployOpts) deploy(ctx context.Context) error {
	args := cdkDeployArgs(o.dryRun, o.deploymentID)
	log.Infof("Running cdk %s...\n", args[0])
	cmd := o.cdk(ctx, args...)
	if o.dryRun {
		// cdk diff exits non-zero when there are differences.
		_ = cmd.Run()
		return nil
	}
	return cmd.Run()
}

// cdk prepares a cdk CLI invocation whose app inherits --region and --env-secret.
func (o *deployOpts) cdk(ctx context.Context, args ...string) *exec.Cmd {
	log.Debugf("$ cdk %s\n", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "cdk", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = o.cdkEnv(os.Environ())
	return cmd
}

// cdkEnv appends the settings the cdk CLI and its app must share with this
// process. Later entries override inherited ones.
func (o *deployOpts) cdkEnv(environ []string) []string {
	env := append([]string(nil), environ...)
	if region := o.region(); region != "" {
		env = append(env, "AWS_REGION="+region, "AWS_DEFAULT_REGION="+region)
	}
	if name := o.envSecret(); name != "" {
		env = append(env, envSecretEnvVar+"="+name)
	}
	return env
}

// cdkDeployArgs returns the cdk CLI arguments for a deploy or a diff.
func cdkDeployArgs(dryRun bool, deploymentID string) []string {
	args := []string{"deploy", "--require-approval", "never"}
	if dryRun {
		args = []string{"diff"}
	}
	if deploymentID != "" {
		args = append(args, "--context", serving.ContextDeploymentID+"="+deploymentID)
	}
	return args
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func buildDeployCmd(g *globalOpts) *cobra.Command {
	opts := &deployOpts{globalOpts: g}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Bootstrap CDK and deploy the serving stack.",
		Example: `
  Deploys to the default region.
  /code $ serving deploy

  Previews the changes without deploying.
  /code $ serving deploy --dry-run

  Forces model package lookups to pick up newly approved packages.
  /code $ serving deploy --deployment-id "$(date +%s)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Execute(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Preview changes with cdk diff instead of deploying")
	cmd.Flags().BoolVar(&opts.skipBootstrap, "skip-bootstrap", false, "Skip CDK bootstrap")
	cmd.Flags().StringVar(&opts.deploymentID, "deployment-id", "", "Value of the deploymentId CDK context")
	return cmd
}
