package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psantana5/example/pkg/shutdown"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultShutdownTimeout = 5 * time.Second

// Version is overridden at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var (
	cfgFile   string
	configErr error

	// exitHooks belongs to the command that is currently running. Execute
	// drains it once the command has returned.
	exitHooks *shutdown.Manager
)

// Config is the effective configuration after flags, environment and the
// config file have been merged
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	Shutdown ShutdownConfig `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`
}

type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type shutdownConfigJSON struct {
	Timeout string `json:"timeout"`
}

// MarshalJSON writes the timeout as a duration string, matching the yaml form
func (s ShutdownConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(shutdownConfigJSON{Timeout: s.Timeout.String()})
}

func (s *ShutdownConfig) UnmarshalJSON(data []byte) error {
	var raw shutdownConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Timeout == "" {
		s.Timeout = 0
		return nil
	}
	d, err := time.ParseDuration(raw.Timeout)
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout %q: %w", raw.Timeout, err)
	}
	s.Timeout = d
	return nil
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "example",
	Short: "Sum a fixed list of integers and log the result",
	Long: `example logs a startup message, sums the integers [1, 2], logs the
result and logs a final message when the process exits normally.`,
	SilenceUsage: true,
	RunE:         runExample,
}

// Execute runs the root command, then the exit hooks registered while it ran
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if exitHooks != nil {
		exitHooks.Shutdown()
		exitHooks = nil
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.example/config.yaml)")
	flags.String("log-level", "debug", "minimum log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-file", "", "also append log records to this file")
	flags.String("metrics-textfile", "", "write prometheus metrics to this file on exit")
	flags.Bool("tracing", false, "export spans over OTLP HTTP")
	flags.String("otlp-endpoint", "localhost:4318", "OTLP HTTP collector host:port")
}

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
	"metrics-textfile": "metrics.textfile",
	"tracing":          "tracing.enabled",
	"otlp-endpoint":    "tracing.endpoint",
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	configErr = nil

	viper.SetDefault("log.level", "debug")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.file", "")
	viper.SetDefault("metrics.textfile", "")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("shutdown.timeout", defaultShutdownTimeout)

	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			configErr = fmt.Errorf("failed to bind flag %s: %w", flag, err)
			return
		}
	}

	viper.SetEnvPrefix("example")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
		return
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory means no default config file; defaults apply.
		return
	}
	viper.AddConfigPath(filepath.Join(home, ".example"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = fmt.Errorf("failed to read config: %w", err)
		}
	}
}

// loadConfig returns the merged configuration
func loadConfig() (Config, error) {
	var cfg Config
	if configErr != nil {
		return cfg, configErr
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
