package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCDKDeployArgs(t *testing.T) {
	testCases := map[string]struct {
		dryRun       bool
		deploymentID string
		want         []string
	}{
		"deploy": {
			want: []string{"deploy", "--require-approval", "never"},
		},
		"dry run": {
			dryRun: true,
			want:   []string{"diff"},
		},
		"deploy with deployment ID": {
			deploymentID: "build-42",
			want:         []string{"deploy", "--require-approval", "never", "--context", "deploymentId=build-42"},
		},
		"dry run with deployment ID": {
			dryRun:       true,
			deploymentID: "build-42",
			want:         []string{"diff", "--context", "deploymentId=build-42"},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, cdkDeployArgs(tc.dryRun, tc.deploymentID))
		})
	}
}

func TestSynthStackProps(t *testing.T) {
	t.Setenv("CDK_DEFAULT_ACCOUNT", "123456789012")
	t.Setenv("CDK_DEFAULT_REGION", "")

	opts := &synthOpts{globalOpts: newGlobalOpts()}
	props := opts.stackProps("churn-prj")
	require.Equal(t, "churn-prj-serving", *props.StackName)
	require.Equal(t, "123456789012", *props.Env.Account)
	require.Nil(t, props.Env.Region)

	opts.stackName = "custom"
	require.Equal(t, "custom", *opts.stackProps("churn-prj").StackName)
}

func TestGlobalOpts_Region(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")
	g := newGlobalOpts()
	require.Equal(t, "eu-west-1", g.region())

	cmd := newRootCmd(g)
	require.NoError(t, cmd.PersistentFlags().Set(regionKey, "us-west-2"))
	require.Equal(t, "us-west-2", g.region())
}

func TestDeployOpts_CDKEnv(t *testing.T) {
	testCases := map[string]struct {
		flags map[string]string
		want  []string
	}{
		"region flag reaches the cdk app": {
			flags: map[string]string{regionKey: "eu-west-1"},
			want:  []string{"AWS_REGION=eu-west-1", "AWS_DEFAULT_REGION=eu-west-1"},
		},
		"env secret reaches the cdk app": {
			flags: map[string]string{regionKey: "us-west-2", envSecretKey: "churn-prj/env"},
			want:  []string{"AWS_REGION=us-west-2", "AWS_DEFAULT_REGION=us-west-2", envSecretEnvVar + "=churn-prj/env"},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("AWS_REGION", "")
			t.Setenv("AWS_DEFAULT_REGION", "")
			t.Setenv(envSecretEnvVar, "")
			g := newGlobalOpts()
			cmd := newRootCmd(g)
			for k, v := range tc.flags {
				require.NoError(t, cmd.PersistentFlags().Set(k, v))
			}

			opts := &deployOpts{globalOpts: g}
			inherited := []string{"AWS_REGION=", "AWS_DEFAULT_REGION=", "PATH=/usr/bin"}
			env := opts.cdkEnv(inherited)
			require.Equal(t, inherited, env[:len(inherited)])
			require.Equal(t, tc.want, env[len(inherited):])

			cdk := opts.cdk(context.Background(), "diff")
			require.Subset(t, cdk.Env, tc.want)
		})
	}
}
