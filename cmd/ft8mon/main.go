package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/christian-lee/ft8mon/internal/audio"
	"github.com/christian-lee/ft8mon/internal/audio/device"
	"github.com/christian-lee/ft8mon/internal/config"
	"github.com/christian-lee/ft8mon/internal/cycle"
	"github.com/christian-lee/ft8mon/internal/decoder"
	"github.com/christian-lee/ft8mon/internal/dispatch"
	"github.com/christian-lee/ft8mon/internal/lifecycle"
	"github.com/christian-lee/ft8mon/internal/metrics"
	"github.com/christian-lee/ft8mon/internal/publish"
	"github.com/christian-lee/ft8mon/internal/report"
	"github.com/christian-lee/ft8mon/internal/spotlog"
	"github.com/christian-lee/ft8mon/internal/web"
)

const usage = `Usage:
  ft8mon -card <device> <channel> [options]    Decode continuously from an input
  ft8mon -levels <device> <channel> [options]  Print input levels
  ft8mon -file <wav> [<wav> ...] [options]     Decode recorded cycles
  ft8mon -list                                 List capture devices

  <device> is a sound card index or name, "rtlsdr" (channel <index>,<MHz>)
  or "ffmpeg" (channel is an ffmpeg input such as pulse:default).

Options:
`

var logLevel = new(slog.LevelVar)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if len(os.Args) < 2 {
		exitUsage(nil)
	}

	mode := os.Args[1]
	fs := newFlags()
	if err := fs.Parse(os.Args[2:]); err != nil {
		exitUsage(fs)
	}
	positional := fs.Args()

	var err error
	switch mode {
	case "-card":
		if len(positional) != 2 {
			exitUsage(fs)
		}
		err = runCard(fs, positional[0], positional[1])
	case "-levels":
		if len(positional) != 2 {
			exitUsage(fs)
		}
		err = runLevels(fs, positional[0], positional[1])
	case "-file":
		if len(positional) == 0 {
			exitUsage(fs)
		}
		err = runFiles(fs, positional)
	case "-list":
		err = device.List(os.Stdout)
	default:
		exitUsage(fs)
	}
	if err != nil {
		slog.Error("ft8mon failed", "mode", mode, "err", err)
		os.Exit(1)
	}
}

type flags struct {
	*flag.FlagSet
	config   *string
	logLevel *string
	budget   *time.Duration
	threads  *int
}

func newFlags() *flags {
	fs := flag.NewFlagSet("ft8mon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &flags{
		FlagSet:  fs,
		config:   fs.String("config", "ft8mon.yaml", "config file (missing file uses defaults)"),
		logLevel: fs.String("log-level", "", "override log_level (debug, info, warn, error)"),
		budget:   fs.Duration("budget", 0, "override the per-pass decode budget"),
		threads:  fs.Int("threads", 0, "override the decoder thread count"),
	}
}

func exitUsage(fs *flags) {
	fmt.Fprint(os.Stderr, usage)
	if fs == nil {
		fs = newFlags()
	}
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
	os.Exit(1)
}

// apply folds command line overrides into cfg.
func (f *flags) apply(cfg *config.Config) error {
	if *f.logLevel != "" {
		cfg.LogLevel = *f.logLevel
	}
	if *f.budget > 0 {
		cfg.Decode.Budget = *f.budget
	}
	if *f.threads > 0 {
		cfg.Decode.Threads = *f.threads
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return logLevel.UnmarshalText([]byte(cfg.LogLevel))
}

func loadConfig(f *flags) (*config.HotConfig, *config.Config, error) {
	hc, err := config.NewHotConfig(*f.config)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg := *hc.Get()
	if err := f.apply(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return hc, &cfg, nil
}

func newEngine(cfg *config.Config) (*decoder.JT9, error) {
	engine := decoder.NewJT9(cfg.EngineConfig())
	if err := engine.CheckAvailable(); err != nil {
		return nil, err
	}
	return engine, nil
}

func runCard(f *flags, dev, channel string) error {
	hc, cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	ctl := lifecycle.New()
	ctl.Notify()
	defer ctl.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := device.Open(dev, channel, cfg.AudioConfig())
	if err != nil {
		return fmt.Errorf("open %s: %w", dev, err)
	}
	if err := src.Start(ctx); err != nil {
		src.Close()
		return fmt.Errorf("start %s: %w", dev, err)
	}
	slog.Info("sound input started", "device", dev, "channel", channel, "rate", src.Rate())

	runID := uuid.NewString()
	printer := report.NewPrinter(os.Stdout, cfg.Timing.SyncOffset)
	m := metrics.New()

	disp := dispatch.New(cfg.Timing.SyncOffset, cfg.Station, runID)
	closers, err := addSinks(disp, cfg)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if err != nil {
		src.Close()
		return err
	}

	cc := cycle.NewCycleContext(nil, printer, m)
	if disp.Len() > 0 {
		cc.AddEmitter(disp)
		disp.Start(ctx)
		defer disp.Stop()
	}

	sched := cycle.NewScheduler(src, engine, cc, cycle.Options{
		Timing:    cfg.CycleTiming(),
		Params:    cfg.DecodeParams(),
		Gate:      ctl,
		Summary:   os.Stdout,
		Observers: []cycle.Observer{m},
	})

	if cfg.Web.Listen != "" {
		hub := web.NewHub()
		status := web.NewStatus(hub, cfg.Web.Recent, cfg.Timing.SyncOffset, cfg.Station, runID)
		status.SetSource("card", dev+" "+channel)
		status.SetSinks(func() any {
			return map[string]any{"sinks": disp.States(), "dropped": disp.Dropped()}
		})
		cc.AddEmitter(status)
		sched.AddObserver(status)

		opts := web.Options{
			Listen:       cfg.Web.Listen,
			Username:     cfg.Web.Username,
			PasswordHash: cfg.Web.PasswordHash,
			Metrics:      m.Handler(),
		}
		if store := findStore(closers); store != nil {
			opts.History = store
		}
		if err := web.NewServer(status, hub, opts).Start(ctx); err != nil {
			src.Close()
			return err
		}
	}

	hc.OnReload(func(old, cur *config.Config) {
		next := *cur
		if err := f.apply(&next); err != nil {
			slog.Error("reloaded config rejected", "err", err)
			return
		}
		sched.SetParams(next.DecodeParams())
		if changed := config.RestartRequired(old, cur); len(changed) > 0 {
			slog.Warn("config sections changed that need a restart", "sections", changed)
		}
	})
	go func() {
		if err := hc.Watch(ctx); err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	err = sched.Run(ctx)
	cancel()
	if cerr := src.Close(); cerr != nil {
		slog.Warn("close input", "err", cerr)
	}
	slog.Info("Sound input device has been shut down")
	return err
}

// addSinks registers every configured spot sink. The returned closers must
// be closed even when err is set.
func addSinks(disp *dispatch.Dispatcher, cfg *config.Config) ([]io.Closer, error) {
	var closers []io.Closer
	if cfg.SpotLog.SQLitePath != "" {
		store, err := spotlog.NewStore(cfg.SpotLog.SQLitePath)
		if err != nil {
			return closers, err
		}
		disp.Add(store)
		closers = append(closers, store)
	}
	if cfg.SpotLog.CSVDir != "" {
		csvLog, err := spotlog.NewCSVLog(cfg.SpotLog.CSVDir)
		if err != nil {
			return closers, err
		}
		slog.Info("logging decodes", "path", csvLog.Path())
		disp.Add(csvLog)
		closers = append(closers, csvLog)
	}
	if cfg.MQTT.Broker != "" {
		pub, err := publish.NewMQTTPublisher(publish.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		})
		if err != nil {
			return closers, err
		}
		disp.Add(pub)
		closers = append(closers, pub)
	}
	return closers, nil
}

func findStore(closers []io.Closer) *spotlog.Store {
	for _, c := range closers {
		if s, ok := c.(*spotlog.Store); ok {
			return s
		}
	}
	return nil
}

func runLevels(f *flags, dev, channel string) error {
	_, cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	ctl := lifecycle.New()
	ctl.Notify()
	defer ctl.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := device.Open(dev, channel, cfg.AudioConfig())
	if err != nil {
		return fmt.Errorf("open %s: %w", dev, err)
	}
	defer src.Close()
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", dev, err)
	}
	slog.Info("sound input started", "device", dev, "channel", channel, "rate", src.Rate())

	return audio.Levels(ctx, src, os.Stdout, time.Second, ctl.Stopping)
}

func runFiles(f *flags, paths []string) error {
	_, cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	printer := report.NewPrinter(os.Stdout, cfg.Timing.SyncOffset)
	sched := cycle.NewScheduler(nil, engine, cycle.NewCycleContext(nil, printer), cycle.Options{
		Timing:  cfg.CycleTiming(),
		Params:  cfg.DecodeParams(),
		Summary: os.Stdout,
	})

	err = sched.ReplayFiles(context.Background(), paths)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
