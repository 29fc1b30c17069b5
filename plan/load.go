package plan

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/plexusone/mlserving-aws-cdk/config"
)

// Load validates env, reads every model descriptor in dir and builds the plan.
func Load(fs afero.Fs, env *config.Environment, dir string) (*Plan, error) {
	if env == nil {
		return nil, fmt.Errorf("environment is required")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	models, err := config.LoadModelConfigs(fs, dir)
	if err != nil {
		return nil, err
	}
	return Build(env, models)
}
