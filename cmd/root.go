// Package cmd implements the mammoth command line interface.
//
// Configuration System:
//
//	Settings are resolved from multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level) - highest priority
//	2. MAMMOTH_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (MAMMOTH_MAMMOTH_MODS_DIR, etc.)
//	4. The TOML configuration file (mammoth.toml) - lowest priority
//
// Environment Variables:
//
//	MAMMOTH_CONFIG_FILE: Path to a custom configuration file
//	MAMMOTH_MAMMOTH_MODS_DIR: Override the module directory
//	MAMMOTH_MAMMOTH_LOG_SEVERITY: Override the log severity
//	And so on following the MAMMOTH_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mammoth",
	Short: "A web server assembled from dynamically loaded modules",
	Long: `Mammoth serves HTTP for one or more configured hosts, each backed by an
ordered set of modules loaded from shared libraries at startup.

Key behaviors:
  • Modules load exactly once, before the first listener opens
  • A module that fails to load is skipped; its hosts keep serving
  • Hosts share ports and are told apart by the Host header
  • A host with no modules still serves its static directory

Quick Start:
  mammoth validate                Check configuration and referenced files
  mammoth modules                 Show every module and whether it loads
  mammoth serve                   Load modules and start serving
  mammoth version                 Show build and module interface versions

Configuration is read from mammoth.toml in the current directory unless
--config or MAMMOTH_CONFIG_FILE points elsewhere.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is mammoth.toml, can also use MAMMOTH_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error, critical); overrides mammoth.log_severity")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points the global viper instance at the configuration file and
// the environment.
//
// Configuration File Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. MAMMOTH_CONFIG_FILE environment variable: Custom config file path
//  3. Default: mammoth.toml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("MAMMOTH_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		viper.SetConfigName("mammoth")
	}

	// Enable automatic environment variable binding with MAMMOTH_ prefix
	viper.SetEnvPrefix("MAMMOTH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing file is fine; every command copes with an empty
	// configuration. A file that exists but does not parse is worth a
	// warning before the command reports whatever it can.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Config error:", err)
		}
	}
}
