package parsers

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/danielNg25/block-reaction/core/configs"
	"github.com/danielNg25/block-reaction/core/configs/validators"
)

// envPrefix is the prefix for environment overrides, e.g.
// BLOCKREACTION_PRIVATE_KEY takes precedence over the private_key file field.
const envPrefix = "blockreaction"

// Parse the run configuration file.
// This function reads the file from disk, parses the YAML, layers any
// environment overrides on top and validates the result.
func ParseConfig(filePath string) (*configs.Config, error) {
	configFileBytes, err := os.ReadFile(filePath)

	if err != nil {
		return nil, errors.Wrap(err, "cannot read config file")
	}

	conf, err := parseConfigYaml(configFileBytes)

	if err != nil {
		return nil, err
	}

	applyDefaults(conf)
	applyEnvironment(conf)

	if err = validators.ValidateConfig(conf); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return conf, nil
}

// Parse the run configuration in the YAML file contents.
func parseConfigYaml(fileContents []byte) (*configs.Config, error) {
	var conf configs.Config
	err := yaml.Unmarshal(fileContents, &conf)

	if err != nil {
		return nil, errors.Wrap(err, "cannot parse config yaml")
	}

	return &conf, nil
}

func applyDefaults(conf *configs.Config) {
	if conf.FeedMode == "" {
		conf.FeedMode = configs.FeedModeSubscribe
	}

	if conf.PollIntervalMs == 0 {
		conf.PollIntervalMs = 50
	}

	if conf.AmountWei == 0 {
		conf.AmountWei = 1
	}

	if conf.DrainTimeoutS == 0 {
		conf.DrainTimeoutS = 120
	}
}

// Endpoints and the signing key may come from the environment instead of the
// file, so that the key never has to live on disk.
func applyEnvironment(conf *configs.Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if s := v.GetString("ws_endpoint"); s != "" {
		conf.WSEndpoint = s
	}

	if s := v.GetString("http_endpoint"); s != "" {
		conf.HTTPEndpoint = s
	}

	if s := v.GetString("private_key"); s != "" {
		conf.PrivateKey = s
	}

	if s := v.GetString("recipient"); s != "" {
		conf.Recipient = s
	}
}
