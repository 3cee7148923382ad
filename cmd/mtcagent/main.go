package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/mtcagent/internal/api"
	"github.com/snarg/mtcagent/internal/config"
	"github.com/snarg/mtcagent/internal/ingest"
	"github.com/snarg/mtcagent/internal/mqttsink"
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/store"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "listen address, e.g. :7000")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.StringVar(&overrides.DevicesFile, "devices", "", "device description JSON file")
	flag.StringVar(&overrides.Adapters, "adapters", "", "adapter list host:port[@deviceName],...")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("mtcagent starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Device descriptions
	devices, err := schema.LoadDevices(cfg.DevicesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.DevicesFile).Msg("failed to load devices")
	}
	if cfg.DevicesXML != "" && cfg.XSDValidator != "" {
		validateDeviceXML(ctx, cfg, log)
	}

	reg := schema.NewRegistry(log.With().Str("component", "schema").Logger())
	for _, dev := range devices {
		reg.InsertSchema(dev)
	}

	// Store and ingest sequencer
	st := store.New(store.Options{
		BufferSize:      cfg.BufferSize,
		AssetBufferSize: cfg.AssetBufferSize,
	})

	var sink ingest.Sink
	if cfg.MQTTBrokerURL != "" {
		mqtt, err := mqttsink.Connect(mqttsink.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		sink = mqtt
	}

	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		Registry: reg,
		Store:    st,
		Sink:     sink,
		Log:      log,
	})
	pipeline.Start()

	// Adapters
	adapterCtx, stopAdapters := context.WithCancel(ctx)
	var adapterWG sync.WaitGroup
	startAdapters(adapterCtx, &adapterWG, cfg, reg, pipeline, log)

	// Device file watcher: a changed description means a restart, the
	// ring and sequence numbers cannot survive a schema swap.
	if cfg.WatchDevices {
		watcher, err := schema.NewWatcher(cfg.DevicesFile, func() {
			log.Warn().Str("file", cfg.DevicesFile).Msg("device file changed, shutting down for restart")
			stop()
		}, log.With().Str("component", "watcher").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to watch device file")
		}
		defer watcher.Close()
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Addr:         cfg.HTTPAddr,
		Registry:     reg,
		Store:        st,
		Version:      version,
		InstanceID:   startTime.Unix(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Log:          log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Shutdown order: adapters first so no new lines arrive, then the
	// sequencer drains, then the HTTP listener closes.
	stopAdapters()
	adapterWG.Wait()
	pipeline.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("mtcagent stopped")
}

// validateDeviceXML runs the external XSD validator against the raw
// device XML. Validation failure is fatal, a bad description must not
// serve traffic.
func validateDeviceXML(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	raw, err := os.ReadFile(cfg.DevicesXML)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.DevicesXML).Msg("failed to read device xml")
	}
	v := &schema.Validator{
		Command: cfg.XSDValidator,
		XSDFile: cfg.XSDFile,
		Runner:  schema.ExecRunner{},
		Log:     log.With().Str("component", "validator").Logger(),
	}
	if err := v.ValidateXML(ctx, string(raw)); err != nil {
		log.Fatal().Err(err).Msg("device xml failed schema validation")
	}
}

// startAdapters launches one adapter client per ADAPTERS entry. An
// entry without @deviceName binds to the sole registered device.
func startAdapters(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config,
	reg *schema.Registry, pipeline *ingest.Pipeline, log zerolog.Logger) {

	specs, err := cfg.AdapterSpecs()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ADAPTERS")
	}
	for _, spec := range specs {
		uuid, ok := resolveDevice(reg, spec.DeviceName)
		if !ok {
			log.Fatal().Str("adapter", spec.Addr).Str("device", spec.DeviceName).
				Msg("adapter names no registered device")
		}
		a := ingest.NewAdapter(ingest.AdapterOptions{
			Addr:       spec.Addr,
			DeviceUUID: uuid,
			Pipeline:   pipeline,
			Heartbeat:  cfg.AdapterHeartbeat,
			Log:        log,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Run(ctx)
		}()
	}
}

func resolveDevice(reg *schema.Registry, name string) (string, bool) {
	if name != "" {
		return reg.DeviceUUID(name)
	}
	uuids := reg.DeviceUUIDs()
	if len(uuids) == 1 {
		return uuids[0], true
	}
	return "", false
}
