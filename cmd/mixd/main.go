package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/m1ser4ble/mixfollower/internal/adapters/jellyfin"
	"github.com/m1ser4ble/mixfollower/internal/adapters/mqtt"
	"github.com/m1ser4ble/mixfollower/internal/core"
	"github.com/m1ser4ble/mixfollower/internal/mixd"
	embeddedmqtt "github.com/m1ser4ble/mixfollower/internal/modules/embedded_mqtt"
	"github.com/m1ser4ble/mixfollower/internal/modules/follower"
)

func main() {
	var (
		configPath  string
		broker      string
		logLevel    string
		logFormat   string
		printConfig bool
		dryRun      bool
	)

	defaultConfig, err := mixd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := mixd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, logLevel, logFormat)

	if printConfig {
		if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if dryRun {
		return
	}

	logger, err := mixd.NewLogger(mixd.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.EmbeddedMQTT.Enabled {
		if cfg.Server.Broker == "" {
			cfg.Server.Broker = embeddedmqtt.BrokerURL(listenAddr(cfg))
		}
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
	}

	interval, err := cfg.IntervalDuration()
	if err != nil {
		logger.Error("invalid interval", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("mixd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("jellyfin", cfg.Jellyfin.BaseURL),
		zap.Duration("interval", interval),
		zap.Int("fetch_commands", len(cfg.Follower.FetchCommands)),
		zap.Int("feeds", len(cfg.Follower.Feeds)),
		zap.Int("lastfm_links", len(cfg.Lastfm.Links)))

	// The command surface is optional: without a broker mixd still runs
	// the schedule, it just cannot be driven by mixctl.
	var client *mqtt.Client
	if cfg.Server.Broker != "" {
		client, err = mqtt.NewClient(mqtt.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  fmt.Sprintf("mixd-%d", time.Now().UnixNano()),
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TopicBase: cfg.Server.TopicBase,
			Timeout:   5 * time.Second,
			Logger:    logger.With(zap.String("module", "mqtt")),
		})
		if err != nil {
			logger.Error("mqtt connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer client.Disconnect()
	}

	mod, err := buildFollower(cfg, client, interval, logger)
	if err != nil {
		logger.Error("failed to build follower", zap.Error(err))
		os.Exit(1)
	}

	supervisor := mixd.Supervisor{Logger: logger}
	modules := []mixd.ModuleRunner{{Name: "follower", Run: mod.Run}}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *mixd.Config, broker, logLevel, logFormat string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
}

func buildFollower(cfg mixd.Config, client *mqtt.Client, interval time.Duration, logger *zap.Logger) (*follower.Module, error) {
	jf, err := jellyfin.NewClient(jellyfin.Config{
		BaseURL: cfg.Jellyfin.BaseURL,
		APIKey:  cfg.Jellyfin.APIKey,
		UserID:  cfg.Jellyfin.UserID,
		Timeout: time.Duration(cfg.Jellyfin.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	log := logger.With(zap.String("module", "follower"))
	index := core.NewIndex(jf)
	matcher := core.NewMatcher(jf, index, log)
	pipeline := core.NewPipeline(cfg.Follower.AcquireCommands, matcher, log)
	reconciler := core.NewReconciler(index, matcher, pipeline, jf, jf, log)

	links := follower.StaticLinks{}
	for _, link := range cfg.Lastfm.Links {
		links[link.UserID] = link.Username
	}
	bound, err := follower.BuildSources(cfg, links)
	if err != nil {
		return nil, err
	}

	service := follower.NewService(reconciler, bound, log)
	return follower.NewModule(log, client, service, follower.Config{
		NodeID:     cfg.Follower.NodeID,
		TopicBase:  cfg.Server.TopicBase,
		Interval:   interval,
		RunOnStart: cfg.Follower.RunOnStart,
	})
}

// startEmbeddedBroker runs the broker outside the supervisor so the
// MQTT client can connect before the remaining modules start.
func startEmbeddedBroker(ctx context.Context, cfg mixd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.EmbeddedMQTT.Username,
		Password:       cfg.EmbeddedMQTT.Password,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := mod.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	return waitForListen(listenAddr(cfg), 3*time.Second)
}

func listenAddr(cfg mixd.Config) string {
	if cfg.EmbeddedMQTT.Listen != "" {
		return cfg.EmbeddedMQTT.Listen
	}
	return "127.0.0.1:1883"
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
