package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigPath = "config"
	Address    = "address"
	LogFormat  = "log-format"
	LogLevel   = "log-level"
	LogSource  = "log-source"
	AuthToken  = "auth-token"
	WorkerKey  = "worker-key"
)

// parseFlags binds command line flags and SPOTORCH_* environment variables.
// Flags win over the environment.
func parseFlags(args []string) (*viper.Viper, error) {
	flags := flag.NewFlagSet("control-plane", flag.ContinueOnError)

	flags.String(ConfigPath, "", "path to configuration file (default: development config)")
	flags.String(Address, "", "listen address, overrides server.address")
	flags.String(LogFormat, "json", "log format (json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.String(AuthToken, "", "operator bearer token (or use SPOTORCH_AUTH_TOKEN env)")
	flags.String(WorkerKey, "", "worker API key (or use SPOTORCH_WORKER_KEY env)")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("spotorch")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(v.BindPFlags(flags))
	return v, nil
}

func newLogger(v *viper.Viper) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(LogLevel))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	options := &slog.HandlerOptions{
		AddSource: v.GetBool(LogSource),
		Level:     level,
	}

	switch format := v.GetString(LogFormat); format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format '%s'", format)
	}
}
