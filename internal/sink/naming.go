// Package sink writes finished pipeline buffers to disk: video through an
// ffmpeg encoder subprocess, audio as a WAV file.
package sink

import (
	"path/filepath"
	"time"
)

// Filename prefixes for the two recording kinds.
const (
	VideoPrefix = "dxgi_output"
	AudioPrefix = "recording"
)

// OutputName returns prefix_YYYYMMDD_HHMMSS.ext for now in local time.
func OutputName(prefix, ext string, now time.Time) string {
	return prefix + "_" + now.Format("20060102_150405") + "." + ext
}

// OutputPath joins dir and OutputName. An empty dir means the working directory.
func OutputPath(dir, prefix, ext string, now time.Time) string {
	return filepath.Join(dir, OutputName(prefix, ext, now))
}

// SessionName is the session identifier derived from an output path.
func SessionName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
