package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factprobe/internal/logging"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
	debug   bool
	logFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "factprobe",
	Short: "factprobe - factual precision scoring for long-form model output",
	Long: `factprobe estimates how much of a model's long-form output is supported
by a knowledge source.

Each response is split into atomic facts, every fact is checked against
passages retrieved for its topic, and the supported fraction is reported
per response and for the whole batch, with an optional penalty for
responses that state too few facts.

A score is a measure of support, not of truth.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number for factprobe.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("factprobe v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.factprobe/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "factprobe.log", "JSON log file (empty for stderr only)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in .env, the config file and ENV variables
func initConfig() {
	// API keys may live in a local .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".factprobe"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// FACTPROBE_GAMMA, FACTPROBE_VERIFIER_MODEL, ...
	viper.SetEnvPrefix("FACTPROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// newLogger builds the run logger from the loaded configuration
func newLogger(file, level string) (*slog.Logger, func() error, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		lvl = slog.LevelDebug
	}
	logger, cleanup := logging.Setup(file, lvl)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}
