// Package ffmpeg builds ffmpeg argument lists for the recorder's encoder
// and audio capture subprocesses.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Base returns the ffmpeg argv prefix shared by every command. The
// level+ prefix lets ParseLogLevel route stderr lines by level.
func Base(binary string) []string {
	if binary == "" {
		binary = "ffmpeg"
	}
	return []string{binary, "-hide_banner", "-nostdin", "-loglevel", "level+info"}
}

// EncodeParams describes a raw-video-over-stdin encode.
type EncodeParams struct {
	Binary      string // ffmpeg path, "" for PATH lookup
	Width       int
	Height      int
	FPS         int
	PixelFormat string // rawvideo input pixel format

	Encoder string // libx264, h264_vaapi, ...
	Bitrate string // 12M
	GOP     int    // keyframe interval (0 = not set)
	BFrames int    // -1 = not set
	Preset  string
	Tune    string
	Profile string

	ProgressURL string   // unix:///tmp/x.sock, "" to disable
	ExtraArgs   []string // inserted before the output path
	Output      string
}

// DefaultEncodeParams returns the recorder's stock H.264 settings.
func DefaultEncodeParams(width, height, fps int, output string) EncodeParams {
	return EncodeParams{
		Width:       width,
		Height:      height,
		FPS:         fps,
		PixelFormat: "yuv420p",
		Encoder:     "libx264",
		Bitrate:     "12M",
		GOP:         120,
		BFrames:     0,
		Preset:      "ultrafast",
		Tune:        "fastdecode",
		Profile:     "main",
		Output:      output,
	}
}

// Validate reports parameters ffmpeg would reject.
func (p EncodeParams) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("invalid frame size %dx%d", p.Width, p.Height)
	case p.Width%2 != 0 || p.Height%2 != 0:
		return fmt.Errorf("frame size %dx%d must be even for %s", p.Width, p.Height, p.PixelFormat)
	case p.FPS <= 0:
		return fmt.Errorf("invalid frame rate %d", p.FPS)
	case p.Encoder == "":
		return errors.New("encoder is required")
	case p.Output == "":
		return errors.New("output path is required")
	}
	return nil
}

// BuildEncodeCommand returns argv for encoding rawvideo read from stdin.
func BuildEncodeCommand(p EncodeParams) []string {
	pixFmt := p.PixelFormat
	if pixFmt == "" {
		pixFmt = "yuv420p"
	}

	args := Base(p.Binary)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-s", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-r", strconv.Itoa(p.FPS),
		"-i", "pipe:0",
		"-c:v", p.Encoder,
	)

	if isSoftwareX264(p.Encoder) {
		if p.Preset != "" {
			args = append(args, "-preset", p.Preset)
		}
		if p.Tune != "" {
			args = append(args, "-tune", p.Tune)
		}
	}
	if p.Profile != "" {
		args = append(args, "-profile:v", p.Profile)
	}
	if p.GOP > 0 {
		args = append(args, "-g", strconv.Itoa(p.GOP))
	}
	if p.BFrames >= 0 {
		args = append(args, "-bf", strconv.Itoa(p.BFrames))
	}
	if p.Bitrate != "" {
		args = append(args, "-b:v", p.Bitrate)
	}

	// Every input frame is one output frame, stamped at the nominal rate.
	args = append(args, "-fps_mode", "cfr", "-pix_fmt", "yuv420p")

	if p.ProgressURL != "" {
		args = append(args, "-progress", p.ProgressURL, "-stats_period", "1")
	}

	args = append(args, p.ExtraArgs...)
	return append(args, "-y", p.Output)
}

func isSoftwareX264(encoder string) bool {
	return encoder == "libx264" || encoder == "libx265"
}

// AudioCaptureParams describes a system audio capture that writes
// interleaved float32 PCM to stdout.
type AudioCaptureParams struct {
	Binary     string
	Format     string // pulse, alsa, dshow, avfoundation
	Device     string
	SampleRate int
	Channels   int
}

// DefaultAudioCaptureParams picks the platform's usual loopback input.
func DefaultAudioCaptureParams() AudioCaptureParams {
	p := AudioCaptureParams{SampleRate: 48000, Channels: 2}
	p.Format, p.Device = DefaultAudioInput(runtime.GOOS)
	return p
}

// DefaultAudioInput returns the ffmpeg input format and device for goos.
func DefaultAudioInput(goos string) (format, device string) {
	switch goos {
	case "windows":
		return "dshow", "audio=Stereo Mix"
	case "darwin":
		return "avfoundation", ":0"
	default:
		return "pulse", "default"
	}
}

// BuildAudioCaptureCommand returns argv for capturing audio to f32le on stdout.
func BuildAudioCaptureCommand(p AudioCaptureParams) []string {
	args := Base(p.Binary)
	args = append(args, "-f", p.Format)
	if p.Format == "pulse" || p.Format == "alsa" {
		args = append(args, "-sample_rate", strconv.Itoa(p.SampleRate), "-channels", strconv.Itoa(p.Channels))
	}
	return append(args,
		"-i", p.Device,
		"-vn",
		"-ac", strconv.Itoa(p.Channels),
		"-ar", strconv.Itoa(p.SampleRate),
		"-f", "f32le",
		"pipe:1",
	)
}

// FindBinary locates ffmpeg in PATH or a common install location.
func FindBinary(name string) (string, error) {
	if name == "" {
		name = "ffmpeg"
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{"/opt/homebrew/bin/" + name, "/usr/local/bin/" + name}
	case "linux":
		paths = []string{"/usr/bin/" + name, "/usr/local/bin/" + name}
	case "windows":
		paths = []string{`C:\ffmpeg\bin\` + name + ".exe", `C:\Program Files\ffmpeg\bin\` + name + ".exe"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}
