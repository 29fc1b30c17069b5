package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plexusone/mlserving-aws-cdk/config"
	"github.com/plexusone/mlserving-aws-cdk/internal/term/log"
)

const defaultSecretName = "mlserving/environment"

//go:generate mockgen -destination=./mocks/mock_env.go -package=mocks -source=./env.go

// secretsAPI is the subset of the Secrets Manager client used here.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// fetchEnvironmentSecret reads a JSON object of environment variables.
func fetchEnvironmentSecret(ctx context.Context, client secretsAPI, name string) (map[string]string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", name)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object of strings: %w", name, err)
	}
	return values, nil
}

// readEnvFile returns the project environment variables set in a .env file.
// Other keys, empty values and "your-..." placeholders are ignored.
func readEnvFile(fs afero.Fs, path string) (map[string]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	v := viper.New()
	v.SetConfigType("env")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}

	values := make(map[string]string)
	for _, key := range config.EnvironmentKeys {
		value := strings.TrimSpace(v.GetString(key))
		if value == "" || strings.HasPrefix(value, "your-") {
			continue
		}
		values[key] = value
	}
	return values, nil
}

// findEnvFile returns the first .env file in the current or parent directory.
func findEnvFile(fs afero.Fs) (string, error) {
	for _, path := range []string{".env", "../.env"} {
		if _, err := fs.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no .env file found in: .env, ../.env")
}

// maskSecretValue keeps the first 8 characters of value.
func maskSecretValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:8] + "***"
}

type envPushOpts struct {
	*globalOpts
	secretName string
	dryRun     bool
	envFile    string
}

func (o *envPushOpts) Execute(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if o.envFile == "" {
		path, err := findEnvFile(o.fs)
		if err != nil {
			return err
		}
		o.envFile = path
	}

	log.Infof("Reading from: %s\n", o.envFile)
	values, err := readEnvFile(o.fs, o.envFile)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("%s sets none of %s", o.envFile, strings.Join(config.EnvironmentKeys, ", "))
	}
	for _, key := range config.EnvironmentKeys {
		if _, ok := values[key]; !ok {
			log.Warningf("%s is not set in %s\n", key, o.envFile)
		}
	}

	log.Infof("Secret: %s\n", o.secretName)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if o.dryRun {
		log.Infoln("Mode: DRY RUN (no changes will be made)")
		for _, k := range keys {
			log.Infof("  %s=%s\n", k, maskSecretValue(values[k]))
		}
		return nil
	}
	log.Infof("  Keys: %s\n", strings.Join(keys, ", "))

	client, err := o.secretsClient(ctx)
	if err != nil {
		return err
	}
	created, err := putEnvironmentSecret(ctx, client, o.secretName, values)
	if err != nil {
		return err
	}
	if created {
		log.Successf("Created secret %s\n", o.secretName)
	} else {
		log.Successf("Updated secret %s\n", o.secretName)
	}
	log.Infof("Use it with: serving deploy --env-secret %s\n", o.secretName)
	return nil
}

// putEnvironmentSecret updates the secret, creating it when it does not exist.
func putEnvironmentSecret(ctx context.Context, client secretsAPI, name string, values map[string]string) (created bool, err error) {
	body, err := json.Marshal(values)
	if err != nil {
		return false, fmt.Errorf("marshaling JSON: %w", err)
	}
	secretValue := string(body)

	_, err = client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(secretValue),
	})
	if err == nil {
		return false, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("updating secret %s: %w", name, err)
	}

	_, err = client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		Description:  aws.String("Model serving stack environment"),
		SecretString: aws.String(secretValue),
	})
	if err != nil {
		return false, fmt.Errorf("creating secret %s: %w", name, err)
	}
	return true, nil
}

func buildEnvCmd(g *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the project environment variables.",
	}
	cmd.AddCommand(buildEnvPushCmd(g))
	return cmd
}

func buildEnvPushCmd(g *globalOpts) *cobra.Command {
	opts := &envPushOpts{globalOpts: g}
	cmd := &cobra.Command{
		Use:   "push [env-file]",
		Short: "Store the project environment variables from a .env file in Secrets Manager.",
		Example: `
  Pushes ./.env (or ../.env) to the default secret.
  /code $ serving env push

  Previews what would be stored.
  /code $ serving env push --dry-run --secret-name churn-prj/serving-env prod.env`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.envFile = args[0]
			}
			return opts.Execute(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.secretName, "secret-name", defaultSecretName, "Secrets Manager secret name")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Preview without creating or updating the secret")
	return cmd
}
