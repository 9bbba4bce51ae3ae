package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jkaberg/rituals-hass/internal/app"
	"github.com/jkaberg/rituals-hass/internal/config"
	"github.com/jkaberg/rituals-hass/internal/mqtt"
	"github.com/jkaberg/rituals-hass/internal/netutil"
	"github.com/jkaberg/rituals-hass/internal/rituals"
	"github.com/jkaberg/rituals-hass/internal/transmission"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

const envPrefix = "RITUALS_HASS_"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, showVersion, err := parseFlags(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if showVersion {
		fmt.Printf("rituals-hass %s\n", version)
		return 0
	}

	logger := setupLogger(cfg.Verbose)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":      version,
		"email":        cfg.Email,
		"update_int":   cfg.UpdateInterval,
		"mqtt_int":     cfg.MQTTInterval,
		"force_update": cfg.ForceUpdateInterval,
	}).Info("Starting rituals-hass")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Core clients ---------------------------------------------------------------
	httpClient := netutil.NewHTTPClient(cfg.APITimeout, logger)
	account := rituals.NewAccount(cfg.APIURL, cfg.Email, cfg.Password, httpClient, logger)

	// Transmitter ----------------------------------------------------------------
	transmission.Version = version
	var sink app.Sink
	if cfg.HasMQTT() {
		mqttClient, err := mqtt.NewClient(cfg.MQTTUrl, cfg.ClientID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer mqttClient.Disconnect(250)

		mqttTx := transmission.NewMQTTTransmitter(
			mqttClient,
			cfg.DiscoveryPrefix,
			mqtt.BridgeAvailabilityTopic(cfg.ClientID),
			cfg.ForceUpdateInterval,
			logger,
		)
		if err := mqttTx.WatchHAStatus(mqttClient); err != nil {
			logger.WithError(err).Warn("Failed to subscribe to Home Assistant status; rediscovery needs a restart")
		}
		sink = mqttTx
		logger.Info("MQTT transmitter ready")
	} else {
		sink = transmission.NewLogTransmitter(logger)
		logger.Warn("No MQTT broker configured; state will only be logged")
	}

	// Run application ------------------------------------------------------------
	if err := app.Run(ctx, cfg, account, sink, logger); err != nil {
		if errors.Is(err, rituals.ErrAuthenticationFailed) {
			logger.WithError(err).Error("Check the Rituals email and password")
		}
		logger.WithError(err).Error("rituals-hass exited with error")
		return 1
	}

	logger.Info("rituals-hass stopped")
	return 0
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

// parseFlags resolves configuration with the precedence
// defaults < YAML file < environment < command line.
func parseFlags(fs *flag.FlagSet, args []string, getenv func(string) string) (*config.Config, bool, error) {
	cfg := config.GetDefaultConfig()

	configPath := configPathFromArgs(args, getenv(envPrefix+"CONFIG"))
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, false, err
		}
		cfg = loaded
	}

	env := func(key, def string) string {
		if v := getenv(envPrefix + key); v != "" {
			return v
		}
		return def
	}

	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.String("config", configPath, "Path to a YAML config file")

	fs.StringVar(&cfg.MQTTUrl, "mqtt-url", env("MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	fs.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", env("DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	fs.StringVar(&cfg.ClientID, "client-id", env("CLIENT_ID", cfg.ClientID), "MQTT client identifier")
	fs.StringVar(&cfg.Email, "email", env("EMAIL", cfg.Email), "Rituals account email")
	fs.StringVar(&cfg.Password, "password", env("PASSWORD", cfg.Password), "Rituals account password")
	fs.StringVar(&cfg.APIURL, "api-url", env("API_URL", cfg.APIURL), "Rituals API base URL")
	fs.BoolVar(&cfg.Verbose, "verbose", env("VERBOSE", strconv.FormatBool(cfg.Verbose)) == "true", "Verbose logging")

	updateIntervalStr := fs.String("update-interval", env("UPDATE_INTERVAL", ""), "Diffuser refresh interval (e.g. 2m)")
	mqttIntervalStr := fs.String("mqtt-interval", env("MQTT_INTERVAL", ""), "Minimum gap between MQTT state passes (e.g. 10s)")
	forceUpdateIntervalStr := fs.String("force-update-interval", env("FORCE_UPDATE_INTERVAL", ""), "Republish all states at this interval even if unchanged (e.g. 10m, 0 = disabled)")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	// Duration overrides
	for _, o := range []struct {
		name      string
		raw       string
		dst       *time.Duration
		allowZero bool
	}{
		{"update-interval", *updateIntervalStr, &cfg.UpdateInterval, false},
		{"mqtt-interval", *mqttIntervalStr, &cfg.MQTTInterval, false},
		{"force-update-interval", *forceUpdateIntervalStr, &cfg.ForceUpdateInterval, true},
	} {
		if o.raw == "" {
			continue
		}
		d, err := config.ParseDuration(o.raw)
		if err != nil || d < 0 || (d == 0 && !o.allowZero) {
			return nil, false, fmt.Errorf("invalid %s %q", o.name, o.raw)
		}
		*o.dst = d
	}

	return cfg, *showVersion, nil
}

// configPathFromArgs finds -config before the full flag set is parsed, so
// file values can serve as flag defaults.
func configPathFromArgs(args []string, def string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
