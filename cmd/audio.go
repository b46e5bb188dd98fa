package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/framerec/internal/audio"
	"github.com/smazurov/framerec/internal/ffmpeg"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/pipeline"
	"github.com/smazurov/framerec/internal/recorder"
	"github.com/smazurov/framerec/internal/sink"
	"github.com/spf13/cobra"
)

// audioFlags holds the audio command's flags.
type audioFlags struct {
	outputDir  string
	ffmpegPath string
	format     string
	device     string
	sampleRate int
	channels   int
	period     time.Duration
	duration   time.Duration
	poolSize   int
}

// CreateAudioCmd creates the audio command.
func CreateAudioCmd() *cobra.Command {
	defaults := ffmpeg.DefaultAudioCaptureParams()
	f := &audioFlags{}

	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Record system audio to a WAV file",
		Long: `Captures system audio through ffmpeg, converts it to 16-bit PCM with peak normalization ` +
			`and writes recording_YYYYMMDD_HHMMSS.wav. Stops on Ctrl+C or after --duration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runAudio(ctx, f)
		},
	}

	cmd.Flags().StringVarP(&f.outputDir, "output", "o", ".", "Directory the WAV file is written to")
	cmd.Flags().StringVar(&f.ffmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary")
	cmd.Flags().StringVar(&f.format, "format", defaults.Format, "ffmpeg input format (pulse, alsa, dshow, avfoundation)")
	cmd.Flags().StringVarP(&f.device, "device", "d", defaults.Device, "Capture device")
	cmd.Flags().IntVar(&f.sampleRate, "rate", defaults.SampleRate, "Sample rate in Hz")
	cmd.Flags().IntVar(&f.channels, "channels", defaults.Channels, "Channel count")
	cmd.Flags().DurationVar(&f.period, "period", 20*time.Millisecond, "Audio per pipeline tick")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "Stop after this long, 0 records until interrupted")
	cmd.Flags().IntVar(&f.poolSize, "pool-size", pipeline.DefaultPoolSize, "Sample buffers preallocated for the pipeline")

	return cmd
}

func runAudio(ctx context.Context, f *audioFlags) error {
	logger := logging.GetLogger("audio")

	samples := int(int64(f.sampleRate) * int64(f.period) / int64(time.Second))
	if samples < 1 {
		return fmt.Errorf("period %v is shorter than one sample at %d Hz", f.period, f.sampleRate)
	}
	shape := pipeline.AudioShape(f.sampleRate, f.channels, 2, samples)
	if err := shape.Validate(); err != nil {
		return err
	}

	binary, err := ffmpeg.FindBinary(f.ffmpegPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	output := sink.OutputPath(f.outputDir, sink.AudioPrefix, "wav", time.Now())

	wav, err := sink.NewWAVSink(output, shape)
	if err != nil {
		return err
	}

	source, err := audio.StartCapture(ffmpeg.AudioCaptureParams{
		Binary:     binary,
		Format:     f.format,
		Device:     f.device,
		SampleRate: f.sampleRate,
		Channels:   f.channels,
	}, shape)
	if err != nil {
		_ = wav.Flush()
		return err
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			logger.Debug("Audio capture closed", "error", closeErr)
		}
	}()

	converter := audio.NewConverter()
	session, err := recorder.New(recorder.Config{
		Name:   sink.SessionName(output),
		Kind:   string(pipeline.KindAudio),
		Output: output,
		Pipeline: pipeline.Config{
			Shape:          shape,
			PoolSize:       f.poolSize,
			Interval:       f.period,
			AcquireTimeout: 2 * f.period,
		},
	}, source, converter, wav)
	if err != nil {
		_ = wav.Flush()
		return err
	}
	defer session.Close()

	// Cancelling the start context skips the flush, so shutdown goes
	// through RequestStop instead.
	if err := session.Start(context.Background()); err != nil {
		_ = wav.Flush()
		return err
	}
	logger.Info("Recording audio", "format", f.format, "device", f.device,
		"rate", f.sampleRate, "channels", f.channels, "output", output)

	var deadline <-chan time.Time
	if f.duration > 0 {
		timer := time.NewTimer(f.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		logger.Info("Interrupted, finishing recording")
	case <-deadline:
		logger.Info("Recording duration reached", "duration", f.duration)
	case <-source.Done():
		logger.Warn("Audio stream ended", "error", source.Err())
	case <-session.Done():
	}
	session.RequestStop()

	err = session.Wait()
	logger.Info("Audio recording finished",
		"output", output,
		"bytes", wav.DataBytes(),
		"peak", converter.Peak(),
		"overruns", source.Overruns())
	return err
}
