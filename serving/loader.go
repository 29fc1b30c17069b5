package serving

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/plexusone/mlserving-aws-cdk/config"
	"github.com/plexusone/mlserving-aws-cdk/plan"
)

// CDK context keys read by NewStackFromContext.
const (
	ContextConfigDir    = "configDir"
	ContextDeploymentID = "deploymentId"
)

// DefaultConfigDir is the configuration directory used when none is given.
const DefaultConfigDir = "models"

// LoadOption customizes NewStackFromDir.
type LoadOption func(*loadOptions)

type loadOptions struct {
	fs           afero.Fs
	env          *config.Environment
	logger       *zap.Logger
	deploymentID string
	stackProps   awscdk.StackProps
}

// WithFs reads configuration from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) LoadOption {
	return func(o *loadOptions) { o.fs = fs }
}

// WithEnvironment uses env instead of reading process environment variables.
func WithEnvironment(env *config.Environment) LoadOption {
	return func(o *loadOptions) { o.env = env }
}

// WithLogger sets the logger used while loading and declaring constructs.
func WithLogger(logger *zap.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = logger }
}

// WithDeploymentID overrides the deployment ID read from CDK context.
func WithDeploymentID(id string) LoadOption {
	return func(o *loadOptions) { o.deploymentID = id }
}

// WithStackProps sets stack properties such as the target environment.
func WithStackProps(props awscdk.StackProps) LoadOption {
	return func(o *loadOptions) { o.stackProps = props }
}

// NewStackFromDir creates a ServingStack from the *.model.json files in dir.
// This is the simplest way to deploy: environment variables plus a directory
// of model descriptors.
func NewStackFromDir(scope constructs.Construct, id, dir string, opts ...LoadOption) (*ServingStack, error) {
	o := &loadOptions{
		fs:     afero.NewOsFs(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	env := o.env
	if env == nil {
		var err error
		if env, err = config.LoadEnvironment(); err != nil {
			return nil, err
		}
	}

	p, err := plan.Load(o.fs, env, dir)
	if err != nil {
		return nil, err
	}
	for _, w := range p.Warnings {
		o.logger.Warn(w)
	}
	o.logger.Debug("loaded model configurations", zap.String("dir", dir), zap.Int("models", len(p.Models)))

	return NewServingStack(scope, id, &ServingStackProps{
		StackProps:   o.stackProps,
		Plan:         p,
		DeploymentID: o.deploymentID,
		Logger:       o.logger,
	}), nil
}

// MustNewStackFromDir is like NewStackFromDir but panics on error.
func MustNewStackFromDir(scope constructs.Construct, id, dir string, opts ...LoadOption) *ServingStack {
	stack, err := NewStackFromDir(scope, id, dir, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create stack from %s: %v", dir, err))
	}
	return stack
}

// NewStackFromContext creates a ServingStack using the configDir and
// deploymentId CDK context values of scope. Explicit options win over context.
func NewStackFromContext(scope constructs.Construct, id string, opts ...LoadOption) (*ServingStack, error) {
	dir := contextString(scope, ContextConfigDir)
	if dir == "" {
		dir = DefaultConfigDir
	}
	if deploymentID := contextString(scope, ContextDeploymentID); deploymentID != "" {
		opts = append([]LoadOption{WithDeploymentID(deploymentID)}, opts...)
	}
	return NewStackFromDir(scope, id, dir, opts...)
}

// contextString reads a string context value, returning "" when unset.
func contextString(scope constructs.Construct, key string) string {
	v := scope.Node().TryGetContext(jsii.String(key))
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}
