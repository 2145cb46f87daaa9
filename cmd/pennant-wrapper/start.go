package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/OrlandoBitencourt/pennant"
	"github.com/OrlandoBitencourt/pennant/internal/server"
)

const shutdownTimeout = 10 * time.Second

// settings is the resolved configuration of the start command
type settings struct {
	addr      string
	target    pennant.Target
	config    pennant.Config
	debug     bool
	telemetry bool
}

func newStartCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Authenticate and start serving flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), s)
		},
	}

	setupFlagSet(cmd.Flags())
	return cmd
}

func setupFlagSet(fs *pflag.FlagSet) {
	defaults := pennant.DefaultConfig()

	fs.StringP("file", "f", "", "the configuration file to use.  Overrides the search path.")
	fs.BoolP("debug", "d", false, "enables debug logging")
	fs.String("addr", ":4000", "address to serve the wrapper API on")
	fs.String("api-key", "", "client SDK key")
	fs.String("target", "", "identifier of the target to evaluate for")
	fs.String("target-name", "", "display name of the target")
	fs.String("base-url", defaults.Remote.BaseURL, "client API base URL")
	fs.String("event-url", defaults.Remote.EventURL, "server-sent events URL")
	fs.Bool("stream", defaults.Sync.StreamEnabled, "receive pushed updates")
	fs.Duration("poll-interval", defaults.Sync.PollInterval, "how often to poll when not streaming")
	fs.Duration("network-probe", 0, "probe backend connectivity at this interval")
	fs.Bool("analytics", defaults.Analytics.Enabled, "record evaluation analytics")
	fs.String("cache-dir", "", "persist evaluations in this directory")
	fs.Bool("otel", false, "export traces and metrics with OpenTelemetry")
}

// loadSettings merges flags, PENNANT_* environment variables and the
// optional configuration file, in that order of precedence.
func loadSettings(v *viper.Viper, fs *pflag.FlagSet) (settings, error) {
	if err := v.BindPFlags(fs); err != nil {
		return settings{}, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetEnvPrefix("pennant")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("file"); len(file) > 0 {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(applicationName)
		v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
		v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return settings{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := pennant.DefaultConfig()
	cfg.APIKey = v.GetString("api-key")
	cfg.Remote.BaseURL = v.GetString("base-url")
	cfg.Remote.EventURL = v.GetString("event-url")
	cfg.Sync.StreamEnabled = v.GetBool("stream")
	cfg.Sync.PollInterval = v.GetDuration("poll-interval")
	cfg.Sync.NetworkProbeInterval = v.GetDuration("network-probe")
	cfg.Analytics.Enabled = v.GetBool("analytics")
	cfg.Cache.Dir = v.GetString("cache-dir")
	if err := cfg.Validate(); err != nil {
		return settings{}, err
	}

	id := v.GetString("target")
	if id == "" {
		return settings{}, fmt.Errorf("target is required")
	}
	target := pennant.NewTarget(id)
	if name := v.GetString("target-name"); name != "" {
		target.Name = name
	}

	return settings{
		addr:      v.GetString("addr"),
		target:    target,
		config:    cfg,
		debug:     v.GetBool("debug"),
		telemetry: v.GetBool("otel"),
	}, nil
}

func run(ctx context.Context, s settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loggers := ldlog.NewDefaultLoggers()
	if s.debug {
		loggers.SetMinLevel(ldlog.Debug)
	}

	opts := []pennant.Option{
		pennant.WithConfig(s.config),
		pennant.WithLoggers(loggers),
	}
	if s.telemetry {
		opts = append(opts, pennant.WithOpenTelemetry())
	}

	client, err := pennant.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	// A failed start is retried on the next reschedule, defaults are served meanwhile
	startCtx, cancel := context.WithTimeout(ctx, s.config.Remote.Timeout)
	if _, err := client.Start(startCtx, s.target); err != nil {
		loggers.Warnf("Client not ready, serving defaults: %v", err)
	}
	cancel()

	srv := server.NewWrapperServer(client, server.Config{Addr: s.addr, ServiceName: applicationName}, loggers)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		client.Destroy()
		return err
	case <-ctx.Done():
	}

	loggers.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	client.Destroy()
	return err
}
