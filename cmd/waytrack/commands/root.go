package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "waytrack",
		Short: "waytrack - window tracking and thumbnail capture for Wayland compositors",
		Long: `waytrack tracks the toplevel windows exposed by a Wayland compositor and
keeps periodic thumbnail screenshots of them, for consumption by task-switcher
style frontends.

It speaks the ext-foreign-toplevel-list and ext-image-copy-capture protocol
extensions directly and serves the resulting window list, thumbnails and a
live event stream over HTTP.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/waytrack/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "API server port (default is 8087)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable log output")

	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
