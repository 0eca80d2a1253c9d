package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/verdict/internal/engine"
	"github.com/ppiankov/verdict/internal/model"
)

var version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	noColor    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Verdict - claim resolution and reputation scoring",
	Long: `Verdict resolves user claims, scores the structure of their evidence,
and keeps a reputation ledger for the people who make them.

Authors lock a claim, resolve it with an outcome and evidence, and the
community may contest the resolution during a dispute window. Once the
window closes and the vote threshold or the deadline is reached, the claim
is finalized, possibly overruling the author.

Evidence is scored on structure only (item count, source quality,
attachments, linked signals), never on what the content says.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		setupLogging()
	},
}

// Execute runs the root command; ctx is cancelled on interrupt
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Verdict.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("verdict v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.verdict/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().String("store", "", "store driver (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "store data source name")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("store.dsn", rootCmd.PersistentFlags().Lookup("dsn"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig layers defaults, the config file and VERDICT_* environment variables
func initConfig() {
	viper.SetConfigType("yaml")

	// Register every key so AutomaticEnv can override nested values
	defaults, err := yaml.Marshal(cliDefaults())
	if err == nil {
		_ = viper.ReadConfig(bytes.NewReader(defaults))
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".verdict"))
		viper.SetConfigName("config")
	}

	// Read in environment variables that match VERDICT_*
	viper.SetEnvPrefix("VERDICT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("contest.redis_password")

	if err := viper.MergeInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// cliDefaults is DefaultConfig with a durable store under $HOME/.verdict
func cliDefaults() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Store.Driver = model.DriverSQLite
	cfg.Store.DSN = "verdict.db"
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Store.DSN = filepath.Join(home, ".verdict", "verdict.db")
		cfg.Cache.Dir = filepath.Join(home, ".verdict", "cache")
	}
	return cfg
}

// loadConfig resolves the effective configuration
func loadConfig() (*model.Config, error) {
	cfg := cliDefaults()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogging() {
	level := slog.LevelWarn
	if lvl := viper.GetString("log_level"); lvl != "" {
		_ = level.UnmarshalText([]byte(lvl))
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openEngine builds an engine from the effective configuration
func openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == model.DriverSQLite && cfg.Store.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("error creating data directory: %w", err)
		}
	}
	if cfg.Store.Driver == model.DriverMemory {
		fmt.Fprintln(os.Stderr, color.YellowString("Warning: memory store, nothing is kept after this command"))
	}
	return engine.New(ctx, cfg)
}

func parseIdentity(flag, value string) (model.Identity, error) {
	if value == "" {
		return model.Identity{}, fmt.Errorf("--%s is required (anon:<id> or account:<id>)", flag)
	}
	id, err := model.ParseIdentity(value)
	if err != nil {
		return model.Identity{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return id, nil
}
