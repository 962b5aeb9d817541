package cli

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd creates the root gatekeeper command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Rate limiting and admission control",
		Long: `Gatekeeper decides whether a caller may perform an action by checking every
applicable limit class (global, per-IP, per-user, per-endpoint) and scaling
them by caller reputation, threat and system load.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text, json); overrides the config file")

	root.AddCommand(
		newServeCmd(opts),
		newSimulateCmd(opts),
		newReplayCmd(opts),
		newGenerateCmd(),
		newStatsCmd(opts),
		newConfigCmd(opts),
	)

	return root
}

// load reads the config file, or the defaults when none was given, and
// applies the logging settings.
func (o *globalOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.LoadFile(o.configPath)
		if err != nil {
			return cfg, err
		}
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := configureLogging(cfg.Logging); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configureLogging(lc config.LoggingConfig) error {
	if lc.Level != "" {
		level, err := log.ParseLevel(lc.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		log.SetLevel(level)
	}

	switch strings.ToLower(lc.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q, must be text or json", lc.Format)
	}
	log.SetOutput(os.Stderr)
	return nil
}
