package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depgate/internal/config"
	"depgate/internal/telemetry"
)

var exit = os.Exit
var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "depgate",
	Short: "Dependency vulnerability gate for JVM projects",
	Long: `depgate evaluates a resolved dependency graph against a local advisory
catalogue and layered policy files, scores each finding, and decides
whether the build passes, warns or blocks.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.depgate.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.Load(cfgFile)
	telemetry.InitLogger(viper.GetBool("verbose"), viper.GetString("log_file"))
}
