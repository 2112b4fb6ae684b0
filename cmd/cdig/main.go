package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/crate-digger/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "cdig",
		Short: "crate-digger - content-based playlist recommendations",
		Long: `cdig (crate-digger) recommends catalog tracks for a playlist.

It normalizes a track catalog and an artist genre table, embeds every track
in a feature space (genre TF-IDF, release year, popularity bucket and audio
attributes), builds a recency-weighted profile of the playlist and ranks the
catalog by cosine similarity to it.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.SetColors(util.IsTerminal(os.Stderr.Fd()))
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults(viper.GetViper())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/cdig.yaml)")
	rootCmd.PersistentFlags().String("db", "cdig.db", "catalog database file")
	rootCmd.PersistentFlags().String("events-dir", "artifacts", "directory for JSONL event logs")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("events_dir", rootCmd.PersistentFlags().Lookup("events-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("cdig")
		viper.SetConfigType("yaml")
	}

	// CDIG_SPOTIFY_CLIENT_ID maps onto spotify.client_id
	viper.SetEnvPrefix("CDIG")
	viper.SetEnvKeyReplacer(envReplacer())
	viper.AutomaticEnv()

	// If a config file is found, read it in
	err := viper.ReadInConfig()
	switch {
	case err == nil:
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	case cfgFile != "":
		util.WarnLog("Failed to read config file %s: %v", cfgFile, err)
	}
}

func envReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
