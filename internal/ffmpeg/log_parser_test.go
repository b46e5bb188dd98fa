package ffmpeg

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[info] Press [q] to stop", "info", "Press [q] to stop"},
		{"[warning] deprecated pixel format used", "warning", "deprecated pixel format used"},
		{"[libx264 @ 0x55d0c8] [error] broken frame", "error", "[libx264 @ 0x55d0c8] broken frame"},
		{"[libx264 @ 0x55d0c8] using cpu capabilities", "info", "[libx264 @ 0x55d0c8] using cpu capabilities"},
		{"frame=  120 fps= 30", "info", "frame=  120 fps= 30"},
		{"[x", "info", "[x"},
		{"", "info", ""},
		{"[unknown] message", "info", "[unknown] message"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, msg := ParseLogLevel(tt.line)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Errorf("ParseLogLevel(%q) = %q, %q; want %q, %q", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}
