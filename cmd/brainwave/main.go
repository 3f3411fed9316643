package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/noriah/brainwave"
	"github.com/noriah/brainwave/config"
	"github.com/noriah/brainwave/graphic"
	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/input/cyton"
	"github.com/noriah/brainwave/metrics"
	"github.com/noriah/brainwave/server"

	_ "github.com/noriah/brainwave/input/all"

	"github.com/integrii/flaggy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// AppName is the app name
const AppName = "brainwave"

// AppDesc is the app description
const AppDesc = "Real-time fatigue and focus from a multi-channel biosignal stream"

// AppSite is the app website
const AppSite = "https://github.com/noriah/brainwave"

var version = "unknown"

func main() {
	log.SetFlags(0)

	var f flags
	cfg := config.NewZeroConfig()

	if doFlags(&f, &cfg) {
		return
	}

	chk(cfg.Sanitize(), "invalid config")

	logger, err := newLogger(&cfg)
	chk(err, "failed to create logger")
	defer logger.Sync() //nolint:errcheck

	cyton.SetLogger(logger)

	backend, err := input.InitBackend(cfg.Backend)
	chk(err, "failed to init backend")
	defer backend.Close()

	var device input.Device
	if cfg.Device != "" {
		device, err = input.GetDevice(backend, cfg.Device)
		chk(err, "failed to get device")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	analysis, err := cfg.Analysis()
	chk(err, "invalid analysis")

	pcfg := brainwave.NewZeroConfig()
	pcfg.Backend = backend
	pcfg.Session = input.SessionConfig{
		Device:       device,
		StreamType:   cfg.StreamType,
		ChannelCount: cfg.ChannelCount,
		SampleRate:   cfg.SampleRate,
	}
	pcfg.SampleTimeout = cfg.SampleTimeout
	pcfg.ResolveTimeout = cfg.ResolveTimeout
	pcfg.JoinTimeout = cfg.JoinTimeout
	pcfg.Analysis = analysis
	pcfg.Logger = logger
	pcfg.Observer = metrics.NewCollector(reg)

	pipeline, err := brainwave.New(pcfg)
	chk(err, "failed to create pipeline")

	// Root Context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Listen != "" {
		hub := server.NewHub(pipeline, cfg.RefreshRate, logger)
		handler := server.NewHandler(ctx, pipeline, hub, reg, logger)

		wg.Add(2)

		go func() {
			defer wg.Done()
			hub.Run(ctx)
		}()

		go func() {
			defer wg.Done()
			if err := server.Serve(ctx, cfg.Listen, handler, logger); err != nil {
				logger.Error("[main] http server failed", zap.Error(err))
				cancel()
			}
		}()
	}

	if f.configPath != "" {
		wg.Add(1)

		go func() {
			defer wg.Done()
			err := config.Watch(ctx, f.configPath, func(next *config.Config) {
				f.apply(next)
				reconfigure(ctx, pipeline, next, logger)
			}, logger)
			if err != nil {
				logger.Error("[main] config watch failed", zap.Error(err))
			}
		}()
	}

	if cfg.AutoStart {
		if err := pipeline.Start(ctx); err != nil {
			logger.Warn("[main] failed to start streaming", zap.Error(err))
		}
	}

	switch {
	case cfg.Headless && f.raw:
		raw := NewRawOutput(os.Stdout, cfg.RefreshRate)
		if err := raw.Run(ctx, pipeline.Snapshot); err != nil {
			logger.Error("[main] raw output failed", zap.Error(err))
		}

	case cfg.Headless:
		<-ctx.Done()

	default:
		dash := graphic.NewDashboard(pipeline, cfg.RefreshRate, logger)
		chk(dash.Init(), "failed to init dashboard")

		err := dash.Run(ctx)
		dash.Close()
		chk(err, "dashboard failed")
	}

	cancel()

	if err := pipeline.Close(); err != nil {
		logger.Error("[main] failed to stop pipeline", zap.Error(err))
	}

	wg.Wait()
}

// reconfigure applies new analysis settings, restarting a running session so
// they take effect.
func reconfigure(ctx context.Context, p *brainwave.Pipeline, cfg *config.Config, logger *zap.Logger) {
	analysis, err := cfg.Analysis()
	if err != nil {
		logger.Error("[main] bad analysis settings", zap.Error(err))
		return
	}

	if err := p.Configure(analysis); err != nil {
		logger.Error("[main] failed to apply config", zap.Error(err))
		return
	}

	if p.State() != brainwave.Streaming {
		return
	}

	if err := p.Stop(); err != nil {
		logger.Error("[main] failed to stop for reconfigure", zap.Error(err))
		return
	}

	if err := p.Start(ctx); err != nil {
		logger.Warn("[main] failed to restart after reconfigure", zap.Error(err))
	}
}

// newLogger logs to the log file, or stderr when headless.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	out := cfg.LogFile
	if cfg.Headless || out == "" {
		out = "stderr"
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{out}
	zcfg.ErrorOutputPaths = []string{out}

	return zcfg.Build()
}

func doFlags(f *flags, cfg *config.Config) bool {

	parser := flaggy.NewParser(AppName)
	parser.Description = AppDesc
	parser.AdditionalHelpPrepend = AppSite
	parser.Version = version

	listBackendsCmd := flaggy.Subcommand{
		Name:                 "list-backends",
		ShortName:            "lb",
		Description:          "list all supported backends",
		AdditionalHelpAppend: "\nuse the full name after the '-'",
	}

	parser.AttachSubcommand(&listBackendsCmd, 1)

	listDevicesCmd := flaggy.Subcommand{
		Name:                 "list-devices",
		ShortName:            "ld",
		Description:          "list all devices for a backend",
		AdditionalHelpAppend: "\nuse the full name after the '-'",
	}

	parser.AttachSubcommand(&listDevicesCmd, 1)

	listStreamsCmd := flaggy.Subcommand{
		Name:        "list-streams",
		ShortName:   "ls",
		Description: "list the streams a backend offers right now",
	}

	parser.AttachSubcommand(&listStreamsCmd, 1)

	parser.String(&f.configPath, "c", "config", "config file (watched for changes)")
	parser.String(&f.backend, "b", "backend", "backend name")
	parser.String(&f.device, "d", "device", "device name")
	parser.String(&f.streamType, "t", "type", "stream type to resolve")
	parser.Int(&f.channelCount, "ch", "channels", "channel count")
	parser.Float64(&f.sampleRate, "r", "rate", "sample rate")
	parser.Int(&f.windowSize, "n", "window", "values kept per channel")
	parser.Int(&f.focusEvery, "fe", "focus-every", "samples between focus estimates")
	parser.Duration(&f.refreshRate, "f", "refresh", "dashboard refresh interval")
	parser.String(&f.listen, "l", "listen", "http listen address")
	parser.Bool(&f.noListen, "nl", "no-listen", "disable the http server")
	parser.String(&f.logFile, "lf", "log-file", "log file")
	parser.String(&f.logLevel, "ll", "log-level", "log level (debug, info, warn, error)")
	parser.Bool(&f.headless, "hl", "headless", "no dashboard, log to stderr")
	parser.Bool(&f.autoStart, "a", "start", "start streaming right away")
	parser.Bool(&f.raw, "raw", "raw", "print snapshots to stdout (headless only)")

	chk(parser.Parse(), "failed to parse arguments")

	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		chk(err, "failed to load config")
		*cfg = *loaded
	}

	f.apply(cfg)

	switch {
	case listBackendsCmd.Used:
		for _, backend := range input.Backends {
			fmt.Printf("- %s\n", backend.Name)
		}

		return true

	case listDevicesCmd.Used:
		backend, err := input.InitBackend(cfg.Backend)
		chk(err, "failed to init backend")

		devices, err := backend.Devices()
		chk(err, "failed to get devices")

		// We don't really need the default device to be indicated.
		defaultDevice, _ := backend.DefaultDevice()

		fmt.Printf("all devices for %q backend. '*' marks default\n", cfg.Backend)

		for idx := range devices {
			star := ' '
			if defaultDevice != nil && devices[idx].String() == defaultDevice.String() {
				star = '*'
			}

			fmt.Printf("- %v %c\n", devices[idx], star)
		}

		return true

	case listStreamsCmd.Used:
		backend, err := input.InitBackend(cfg.Backend)
		chk(err, "failed to init backend")

		var device input.Device
		if cfg.Device != "" {
			device, err = input.GetDevice(backend, cfg.Device)
			chk(err, "failed to get device")
		}

		streams, err := backend.Streams(input.SessionConfig{
			Device:       device,
			StreamType:   cfg.StreamType,
			ChannelCount: cfg.ChannelCount,
			SampleRate:   cfg.SampleRate,
		})
		chk(err, "failed to list streams")

		fmt.Printf("streams on %q backend\n", cfg.Backend)

		for _, info := range streams {
			fmt.Printf("- %s (%s) %d ch @ %g Hz [%s]\n",
				info.Name, info.Type, info.ChannelCount, info.SampleRate, info.SourceID)
		}

		return true
	}

	return false
}

func chk(err error, wrap string) {
	if err != nil {
		log.Fatalln(wrap+": ", err)
	}
}
