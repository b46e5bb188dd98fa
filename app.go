package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/smazurov/framerec/internal/api"
	"github.com/smazurov/framerec/internal/config"
	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/ffmpeg"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/metrics/exporters"
	"github.com/smazurov/framerec/internal/pipeline"
	"github.com/smazurov/framerec/internal/process"
	"github.com/smazurov/framerec/internal/recorder"
	"github.com/smazurov/framerec/internal/screen"
	"github.com/smazurov/framerec/internal/sink"
	"github.com/smazurov/framerec/internal/systemd"
)

// shutdownTimeout bounds how long a signal waits for the output to be finalized.
const shutdownTimeout = 45 * time.Second

// recorderApp runs one screen recording with the control API around it.
type recorderApp struct {
	opts   *Options
	logger logging.Logger
	bus    *events.Bus

	server   *api.Server
	watcher  *config.Watcher[logging.Config]
	notifier *systemd.Notifier
	session  atomic.Pointer[recorder.Session]

	stopping atomic.Bool
	finished chan struct{}
	exitCode int
}

func newRecorderApp(opts *Options) *recorderApp {
	return &recorderApp{
		opts:     opts,
		logger:   logging.GetLogger("main"),
		bus:      events.New(),
		notifier: systemd.NewNotifier(),
		finished: make(chan struct{}),
	}
}

// run records until the session ends and returns the process exit code.
func (a *recorderApp) run() int {
	defer close(a.finished)

	logging.SetLogCallback(func(entry logging.LogEntry) {
		a.bus.Publish(events.LogEntryEvent{
			Seq:        entry.Seq,
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Session:    entry.Session,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	})
	defer logging.SetLogCallback(nil)

	defer a.notifier.FollowStats(a.bus)()

	a.startWatcher()
	defer a.stopWatcher()

	a.startServer()
	defer a.stopServer()

	err := a.record()
	switch {
	case err == nil:
		a.exitCode = 0
	case errors.Is(err, context.Canceled):
		a.exitCode = 0
	default:
		a.logger.Error("Recording failed", "error", err)
		a.exitCode = 1
	}
	return a.exitCode
}

// shutdown stops the recording on a signal and waits for it to finish.
func (a *recorderApp) shutdown(timeout time.Duration) int {
	a.stopping.Store(true)
	a.notifier.Stopping()
	if s := a.session.Load(); s != nil {
		a.logger.Info("Signal received, finishing recording")
		s.RequestStop()
	}

	select {
	case <-a.finished:
		return a.exitCode
	case <-time.After(timeout):
		a.logger.Error("Recording did not finish in time, output may be truncated", "timeout", timeout)
		return 1
	}
}

func (a *recorderApp) record() error {
	opts := a.opts

	bounds, err := screen.DisplayBounds(opts.VideoDisplay)
	if err != nil {
		return err
	}
	width, height := screen.OutputSize(bounds, float64(opts.VideoScalePercent)/100)

	acquireTimeout, err := time.ParseDuration(opts.CaptureAcquireTimeout)
	if err != nil {
		a.logger.Warn("Invalid capture timeout, using default", "value", opts.CaptureAcquireTimeout)
		acquireTimeout = pipeline.DefaultAcquireTimeout
	}

	binary, err := ffmpeg.FindBinary(opts.EncoderBinary)
	if err != nil {
		return err
	}

	extra, err := process.SplitCommand(opts.EncoderExtraArgs)
	if err != nil {
		return fmt.Errorf("encoder extra args: %w", err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	output := sink.OutputPath(opts.OutputDir, sink.VideoPrefix, opts.EncoderExt, time.Now())
	name := sink.SessionName(output)

	params := ffmpeg.DefaultEncodeParams(width, height, opts.VideoFPS, output)
	params.Binary = binary
	params.Encoder = opts.EncoderCodec
	params.Bitrate = opts.EncoderBitrate
	params.Preset = opts.EncoderPreset
	params.GOP = opts.EncoderGOP
	params.ExtraArgs = extra

	sinkCfg := sink.FFmpegConfig{Params: params, Session: name}
	if opts.EncoderProgress && runtime.GOOS != "windows" {
		sinkCfg.ProgressSocket = filepath.Join(os.TempDir(), "framerec-progress-"+name+".sock")
	}

	source, err := screen.NewSource(opts.VideoDisplay)
	if err != nil {
		return err
	}

	a.logger.Info("Recording display",
		"display", opts.VideoDisplay,
		"region", bounds.String(),
		"size", fmt.Sprintf("%dx%d", width, height),
		"fps", opts.VideoFPS,
		"output", output)

	encoder, err := sink.NewFFmpegSink(sinkCfg)
	if err != nil {
		return err
	}

	session, err := recorder.New(recorder.Config{
		Name:   name,
		Kind:   string(pipeline.KindVideo),
		Output: output,
		Pipeline: pipeline.Config{
			Shape:          pipeline.VideoShape(width, height),
			PoolSize:       opts.CapturePoolSize,
			Interval:       pipeline.IntervalForRate(opts.VideoFPS),
			AcquireTimeout: acquireTimeout,
		},
		EventBus: a.bus,
	}, source, screen.NewConverter(), encoder)
	if err != nil {
		_ = encoder.Close()
		return err
	}
	defer session.Close()

	if err := session.Start(context.Background()); err != nil {
		_ = encoder.Close()
		return err
	}
	a.session.Store(session)
	if a.server != nil {
		a.server.SetRecorder(session)
	}
	a.notifier.Ready("Recording " + name)

	// A signal may have arrived before the session existed
	if a.stopping.Load() {
		session.RequestStop()
	}

	if d := parseDuration(opts.Duration); d > 0 {
		timer := time.AfterFunc(d, func() {
			a.logger.Info("Recording duration reached", "duration", d)
			session.RequestStop()
		})
		defer timer.Stop()
	}

	<-session.Done()
	a.notifier.Stopping()
	err = session.Wait()
	if outstanding := source.Outstanding(); outstanding > 0 {
		a.logger.Debug("Screen grabs still in flight at exit", "count", outstanding)
	}
	a.logger.Info("Encoder finished", "written", encoder.Written(), "duplicated", encoder.Duplicated())
	return err
}

func (a *recorderApp) startServer() {
	if a.opts.Port == "" {
		return
	}
	a.server = api.NewServer(&api.Options{
		AuthUsername:      a.opts.AuthUsername,
		AuthPassword:      a.opts.AuthPassword,
		EventBus:          a.bus,
		PrometheusHandler: exporters.HTTPHandler(),
	})
	go func() {
		if err := a.server.Start(a.opts.Port); err != nil {
			a.logger.Error("API server failed", "error", err)
		}
	}()
}

func (a *recorderApp) stopServer() {
	if a.server == nil {
		return
	}
	if err := a.server.Stop(); err != nil {
		a.logger.Warn("Error stopping API server", "error", err)
	}
}

func (a *recorderApp) startWatcher() {
	if _, err := os.Stat(a.opts.Config); err != nil {
		return
	}

	a.watcher = config.NewConfigWatcher(a.opts.Config, config.ReadLoggingConfig, logging.GetLogger("config"))
	a.watcher.OnReload(func(cfg logging.Config) {
		// The request logger follows the api level, as at startup
		if level, ok := cfg.Modules["api"]; ok {
			if _, set := cfg.Modules["http"]; !set {
				cfg.Modules["http"] = level
			}
		}
		logging.SetLevels(cfg)
		a.logger.Info("Logging levels reloaded", "level", cfg.Level)
		a.bus.Publish(events.ConfigReloadedEvent{
			Path:      a.opts.Config,
			Level:     cfg.Level,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})
	if err := a.watcher.Start(); err != nil {
		a.logger.Warn("Config hot reload disabled", "error", err)
		a.watcher = nil
	}
}

func (a *recorderApp) stopWatcher() {
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Stop(); err != nil {
		a.logger.Warn("Error stopping config watcher", "error", err)
	}
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logging.GetLogger("main").Warn("Ignoring invalid duration", "value", s, "error", err)
		return 0
	}
	return d
}
