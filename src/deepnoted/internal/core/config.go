// Package core provides the configuration and logging fx modules shared by
// every other package in the daemon.
package core

import (
	"fmt"
	"os"
	"path/filepath"

	uberconfig "go.uber.org/config"
	"go.uber.org/fx"
)

// ConfigModule provides the YAML config provider.
var ConfigModule = fx.Options(
	fx.Provide(NewConfig),
)

// NewConfig loads the daemon configuration. meta.yaml lists the files that
// make up the configuration; files that do not exist are skipped so a local
// override file is optional.
func NewConfig() (uberconfig.Provider, error) {
	configDir := getConfigDir()

	metaProvider, err := uberconfig.NewYAML(
		uberconfig.File(filepath.Join(configDir, "meta.yaml")),
		uberconfig.Expand(os.LookupEnv),
	)
	if err != nil {
		return nil, fmt.Errorf("loading meta configuration: %w", err)
	}

	var configFiles []string
	if err := metaProvider.Get("files").Populate(&configFiles); err != nil {
		return nil, fmt.Errorf("reading files list from meta.yaml: %w", err)
	}

	var options []uberconfig.YAMLOption
	for _, file := range configFiles {
		fullPath := filepath.Join(configDir, file)
		if _, err := os.Stat(fullPath); err == nil {
			options = append(options, uberconfig.File(fullPath))
		}
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("no configuration files found in %s", configDir)
	}
	options = append(options, uberconfig.Expand(os.LookupEnv))

	provider, err := uberconfig.NewYAML(options...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return provider, nil
}

// getConfigDir returns the path of the configuration directory. The env
// override exists so tests and packaged installs can relocate it.
func getConfigDir() string {
	if configDir := os.Getenv("DEEPNOTED_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	return "src/deepnoted/config"
}
