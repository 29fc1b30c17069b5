package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testAccount = "123456789012"
	testRoleARN = "arn:aws:iam::" + testAccount + ":role/"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvProjectBucket, "sagemaker-project-bucket")
	t.Setenv(EnvProjectName, "churn")
	t.Setenv(EnvProjectID, "p-abc123")
	t.Setenv(EnvCodePipelineARN, "arn:aws:codepipeline:us-east-1:"+testAccount+":sagemaker-churn-deploy")
	t.Setenv(EnvPipelineRoleARN, testRoleARN+"service-role/SageMakerExecution")
	t.Setenv(EnvStudioUserRoleARN, testRoleARN+"StudioUser")
	t.Setenv(EnvLambdaRoleARN, testRoleARN+"Lambda")
	t.Setenv(EnvGlueRoleARN, testRoleARN+"Glue")
	t.Setenv(EnvAPIGatewayRoleARN, testRoleARN+"ApiGw")
}

func TestLoadEnvironment(t *testing.T) {
	setValidEnv(t)

	env, err := LoadEnvironment()
	require.NoError(t, err)
	require.Equal(t, "sagemaker-project-bucket", env.ProjectBucket)
	require.Equal(t, "churn", env.ProjectName)
	require.Equal(t, "p-abc123", env.ProjectID)
	require.Equal(t, testRoleARN+"Lambda", env.LambdaRoleARN)
	require.Len(t, env.Values(), len(EnvironmentKeys))
}

func TestLoadEnvironment_ReportsEveryProblem(t *testing.T) {
	setValidEnv(t)
	t.Setenv(EnvProjectBucket, "")
	t.Setenv(EnvProjectID, "")
	t.Setenv(EnvGlueRoleARN, "not-an-arn")
	t.Setenv(EnvLambdaRoleARN, "arn:aws:s3:::bucket")
	t.Setenv(EnvAPIGatewayRoleARN, "arn:aws:iam::"+testAccount+":user/someone")

	_, err := LoadEnvironment()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "environment", verr.Source)
	require.Len(t, verr.Problems, 5)
	require.Contains(t, err.Error(), "PROJECT_BUCKET is not set")
	require.Contains(t, err.Error(), "SAGEMAKER_PROJECT_ID is not set")
	require.Contains(t, err.Error(), "GLUE_ROLE_ARN")
	require.Contains(t, err.Error(), `has service "s3", want "iam"`)
	require.Contains(t, err.Error(), "is not a role resource")
}

func TestEnvironmentFromViper_DefaultsYieldToEnv(t *testing.T) {
	setValidEnv(t)
	t.Setenv(EnvProjectName, "")

	v := NewEnvironmentViper()
	v.SetDefault(EnvProjectName, "from-secret")
	v.SetDefault(EnvProjectBucket, "ignored-default")

	env, err := EnvironmentFromViper(v)
	require.NoError(t, err)
	require.Equal(t, "from-secret", env.ProjectName)
	require.Equal(t, "sagemaker-project-bucket", env.ProjectBucket)
}

func TestEnvironment_ValidateCodePipelineARN(t *testing.T) {
	setValidEnv(t)
	t.Setenv(EnvCodePipelineARN, testRoleARN+"NotAPipeline")

	_, err := LoadEnvironment()
	require.ErrorContains(t, err, `CODEPIPELINE_ARN: ARN "`+testRoleARN+`NotAPipeline" has service "iam", want "codepipeline"`)
}
