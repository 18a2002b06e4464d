package main

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("swarmscore")

const shortDescription = `
swarmscore - reputation scoring for worker nodes
`

const longDescription = `
swarmscore polls registered worker nodes for performance telemetry, converts
recent activity into a bounded score vector and publishes it to the consensus
ledger, where scores become reward weights.
`

var (
	cfgFile string

	logLevel string

	rootCmd = &cobra.Command{
		Use:   "swarmscore",
		Short: shortDescription,
		Long:  longDescription,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level")

	// register all commands and their subcommands
	rootCmd.AddCommand(startCmd)
}

func initConfig() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SWARMSCORE")

	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
