//go:build !linux

package audio

import "fmt"

// ListDevices returns an error on platforms without ALSA.
func ListDevices() ([]Device, error) {
	return nil, fmt.Errorf("audio device enumeration not supported on this platform")
}
