// cmd/root.go - Root command implementation
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tiledeck",
	Short: "Assemble vector tile source feeds into MBTiles archives",
	Long: `tiledeck is a command-line tool that packs a source feed of vector
tile features into a single MBTiles archive, and inspects the archives
it produces.

Data Sources:
- Remote feed documents via HTTP/HTTPS
- Local feed files
- Directories of real .mvt tile fixtures (for testing)

Features:
- Ordered or unordered tile emission into the archive
- Per-zoom telemetry embedded in the archive for later inspection
- Concurrent encoding for optimal throughput
- Configurable output destinations

Examples:
  # Pack a remote NDJSON feed into an archive
  tiledeck pack --base-url "https://example.com" --feed "https://example.com/feed.ndjson" --output tiles.mbtiles --min-zoom 0 --max-zoom 12

  # Pack a local feed file
  tiledeck pack --base-path /path/to --feed feed.ndjson --output tiles.mbtiles

  # Inspect an archive's metadata and embedded run summary
  tiledeck inspect tiles.mbtiles --format json --pretty

  # Use a configuration file
  tiledeck pack --config config.yaml --feed feed.ndjson --output tiles.mbtiles`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tiledeck.yaml)")

	// Source configuration flags
	rootCmd.PersistentFlags().String("source-type", "auto", "feed source type (auto, http, local)")
	rootCmd.PersistentFlags().String("base-url", "", "base URL for feed server (HTTP source)")
	rootCmd.PersistentFlags().String("base-path", "", "base path for local feed files (local source)")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (HTTP source)")

	// Output flags
	rootCmd.PersistentFlags().StringP("format", "f", "text", "report output format (text, json)")
	rootCmd.PersistentFlags().Bool("pretty", true, "pretty print JSON output")
	rootCmd.PersistentFlags().Bool("compression", false, "compression setting (not applied: inspect output is written uncompressed)")

	// Processing flags
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")
	rootCmd.PersistentFlags().Int("concurrency", 10, "number of concurrent requests")
	rootCmd.PersistentFlags().Duration("timeout", 30*1000000000, "request timeout (HTTP source)")
	rootCmd.PersistentFlags().Int("retries", 3, "number of retry attempts")

	// Bind flags to viper
	viper.BindPFlag("source.type", rootCmd.PersistentFlags().Lookup("source-type"))
	viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("local.base_path", rootCmd.PersistentFlags().Lookup("base-path"))
	viper.BindPFlag("server.api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("output.pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("output.compression", rootCmd.PersistentFlags().Lookup("compression"))
	viper.BindPFlag("logging.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("batch.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("server.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("server.max_retries", rootCmd.PersistentFlags().Lookup("retries"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tiledeck" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tiledeck")
	}

	// Environment variables
	viper.SetEnvPrefix("TILEDECK")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
