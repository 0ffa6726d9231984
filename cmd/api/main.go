package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/exportguard/internal/adapter/actor"
	"github.com/berfenger/exportguard/internal/adapter/device"
	"github.com/berfenger/exportguard/internal/adapter/limiter"
	"github.com/berfenger/exportguard/internal/adapter/metrics"
	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/actor"
	"github.com/berfenger/exportguard/internal/core/service"
	"github.com/berfenger/exportguard/internal/server"
	"github.com/berfenger/exportguard/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	root := &cobra.Command{
		Use:     "exportguard",
		Short:   "Solar inverter export limit controller",
		Version: versioninfo.Short(),
		Long: `exportguard polls a SunSpec site meter and one or more SunSpec inverters,
reconciles the export and generation limits published by its limit sources
and curtails the inverters so the site stays within the most restrictive one.

Configuration is read from the file named by --config (or CONFIG_FILE) and
from EXPORTGUARD_* environment variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	root.Flags().String("config", "", "yaml config file (overrides CONFIG_FILE)")
	root.Flags().Bool("dry-run", false, "calculate and log the control values without writing them")
	root.Flags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("config_file", root.Flags().Lookup("config"))
	_ = viper.BindPFlag("dry_run", root.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("log_level", root.Flags().Lookup("log-level"))

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return err
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	fleet, err := device.NewFleet(cfg.Devices, logger)
	if err != nil {
		return fmt.Errorf("device setup: %w", err)
	}

	limits, err := limiter.RegistryFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("limit sources: %w", err)
	}
	limitsCtx, cancelLimits := context.WithCancel(context.Background())
	defer cancelLimits()
	if err := limits.Start(limitsCtx); err != nil {
		return fmt.Errorf("limit sources: %w", err)
	}
	defer limits.Stop()

	es := &eventstream.EventStream{}

	sinks := metrics.Multi{
		metrics.NewLogSink(logger),
		metrics.NewEventStreamSink(es, cfg.Devices.PollInterval()),
	}
	if cfg.InfluxDB.Enable {
		influx := metrics.NewInfluxSink(cfg.InfluxDB, logger)
		defer influx.Close()
		sinks = append(sinks, influx)
	}

	services := actor.ControlServices{
		Limits:      limits,
		Reconciler:  service.DefaultLimitReconciler{},
		Calculator:  service.NewControlCalculator(cfg.Control.DefaultExportLimitWatts, service.NewRampRateController(cfg.Control.RampRatePerSecond), sinks, logger),
		Metrics:     sinks,
		EventStream: es,
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, fleet.Meter, fleet.Inverters, services, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return err
	}

	server := server.NewServer(*cfg, ctx, pid, limits)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
	closeConnections(fleet, logger)
	return nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => EXPORTGUARD_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("EXPORTGUARD_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("exportguard")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	cfgFile := viper.GetString("config_file")
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		} else {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func closeConnections(fleet *device.Fleet, logger *zap.Logger) {
	closers := []interface{ Close() error }{fleet.Meter}
	for _, inv := range fleet.Inverters {
		closers = append(closers, inv)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("device close failed", zap.Error(err))
		}
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("dry_run", false)
	viper.SetDefault("devices.port", 502)
	viper.SetDefault("devices.poll_interval_millis", 1000)
	viper.SetDefault("devices.timeout_millis", 1000)
	viper.SetDefault("devices.retry_attempts", 3)
	viper.SetDefault("devices.retry_delay_millis", 100)
	viper.SetDefault("devices.reconnect_after_failures", 5)
	viper.SetDefault("devices.simulation.load_watts", 800)
	viper.SetDefault("devices.simulation.available_watts", 5000)
	viper.SetDefault("devices.simulation.rated_watts", 5000)
	viper.SetDefault("devices.simulation.inverter_count", 1)
	viper.SetDefault("control.apply_control", true)
	viper.SetDefault("control.ramp_rate_per_second", 0)
	viper.SetDefault("control.revert_seconds", 60)
	viper.SetDefault("control.stale_after_millis", 10000)
	viper.SetDefault("control.default_export_limit_watts", 1500)
	viper.SetDefault("limits.schedule.enable", true)
	viper.SetDefault("limits.bus.transport", config.BUS_TRANSPORT_MQTT)
	viper.SetDefault("limits.bus.topic", "exportguard/limits")
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "exportguard")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("nats.url", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.name", "exportguard")
	viper.SetDefault("influxdb.enable", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.InfluxDB.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
