//go:build linux

package audio

import (
	"fmt"
	"os"
)

const pcmListPath = "/proc/asound/pcm"

// ListDevices enumerates ALSA PCM devices.
func ListDevices() ([]Device, error) {
	f, err := os.Open(pcmListPath)
	if err != nil {
		return nil, fmt.Errorf("list ALSA devices: %w", err)
	}
	defer f.Close()
	return parsePCMList(f)
}
