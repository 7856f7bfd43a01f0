// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	sceneFlag = "scene"
	sceneConf = "scene.path"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with SCENEMATCH, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("SCENEMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/scenematch", "$HOME/.scenematch", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "scenematch",
		Short: "A real-time scene query engine matching semantic queries against tracked world data",
		Long: `A real-time scene query engine matching semantic queries against tracked world data.

scenematch rates every tracked entity against the conditions of registered queries, resolves
exclusive ownership between competing queries, matches sets of related entities, and reports
acquisition, update, loss and timeout events as the scene changes.`,
		SilenceUsage: true,
	}
}
