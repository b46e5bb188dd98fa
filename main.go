package main

import (
	"log/slog"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/framerec/cmd"
	"github.com/smazurov/framerec/internal/config"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"framerec.toml"`

	// Output settings
	OutputDir string `help:"Directory recordings are written to" short:"o" default:"." toml:"output.dir" env:"OUTPUT_DIR"`
	Duration  string `help:"Stop after this long (e.g. 90s, 10m); empty records until stopped" default:"" toml:"output.duration" env:"OUTPUT_DURATION"`

	// Video settings
	VideoDisplay      int `help:"Display index to record" default:"0" toml:"video.display" env:"VIDEO_DISPLAY"`
	VideoFPS          int `help:"Frames per second" default:"30" toml:"video.fps" env:"VIDEO_FPS"`
	VideoScalePercent int `help:"Output size as a percentage of the display size" default:"100" toml:"video.scale_percent" env:"VIDEO_SCALE_PERCENT"`

	// Capture settings
	CapturePoolSize       int    `help:"Frame buffers preallocated for the pipeline" default:"50" toml:"capture.pool_size" env:"CAPTURE_POOL_SIZE"`
	CaptureAcquireTimeout string `help:"Longest wait for one screen grab" default:"250ms" toml:"capture.acquire_timeout" env:"CAPTURE_ACQUIRE_TIMEOUT"`

	// Encoder settings
	EncoderBinary    string `help:"ffmpeg binary" default:"ffmpeg" toml:"encoder.binary" env:"ENCODER_BINARY"`
	EncoderCodec     string `help:"ffmpeg video encoder" default:"libx264" toml:"encoder.codec" env:"ENCODER_CODEC"`
	EncoderBitrate   string `help:"Target video bitrate" default:"12M" toml:"encoder.bitrate" env:"ENCODER_BITRATE"`
	EncoderPreset    string `help:"Encoder preset (x264/x265 only)" default:"ultrafast" toml:"encoder.preset" env:"ENCODER_PRESET"`
	EncoderGOP       int    `help:"Keyframe interval in frames" default:"120" toml:"encoder.gop" env:"ENCODER_GOP"`
	EncoderExtraArgs string `help:"Extra ffmpeg output arguments" default:"" toml:"encoder.extra_args" env:"ENCODER_EXTRA_ARGS"`
	EncoderProgress  bool   `help:"Collect ffmpeg progress into metrics" default:"true" toml:"encoder.progress" env:"ENCODER_PROGRESS"`
	EncoderExt       string `help:"Output container extension" default:"avi" toml:"encoder.ext" env:"ENCODER_EXT"`

	// Server settings
	Port string `help:"Control API listen address, empty to disable" short:"p" default:":8091" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingScreen   string `help:"Screen capture logging level" default:"info" toml:"logging.screen" env:"LOGGING_SCREEN"`
	LoggingSink     string `help:"Sink logging level" default:"info" toml:"logging.sink" env:"LOGGING_SINK"`
	LoggingFFmpeg   string `help:"ffmpeg output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipeline": opts.LoggingPipeline,
				"screen":   opts.LoggingScreen,
				"sink":     opts.LoggingSink,
				"ffmpeg":   opts.LoggingFFmpeg,
				"api":      opts.LoggingAPI,
				"http":     opts.LoggingAPI,
			},
		})

		app := newRecorderApp(opts)

		hooks.OnStart(func() {
			code := app.run()
			// On a signal, OnStop owns the exit
			if !app.stopping.Load() {
				os.Exit(code)
			}
		})

		hooks.OnStop(func() {
			if code := app.shutdown(shutdownTimeout); code != 0 {
				os.Exit(code)
			}
		})
	})

	cli.Root().Use = "framerec"
	cli.Root().Short = "Record a display to an H.264 file"
	cli.Root().Version = version.Get().String()

	cli.Root().AddCommand(cmd.CreateAudioCmd())
	cli.Root().AddCommand(cmd.CreateDisplaysCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
