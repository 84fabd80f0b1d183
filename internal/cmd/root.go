// Package cmd implements the gantry CLI. The scheduling core never touches
// files; all manifest reading and rendering happens here.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gantrydev/gantry/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Dependency-graph construction and multi-unit execution scheduling",
	Long: `Gantry builds a dependency graph over a set of work units, plans their
execution (phases, parallel groups, critical path), and coordinates the run
with bounded parallelism and failure propagation.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/gantry/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GANTRY")
	// GANTRY_SCHEDULER_MAX_PARALLEL_TASKS for scheduler.max_parallel_tasks
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
