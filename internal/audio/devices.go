package audio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Device is an ALSA PCM device that can be passed to ffmpeg's alsa input.
type Device struct {
	CardNumber   int    `json:"card_number" example:"0"`
	DeviceNumber int    `json:"device_number" example:"0"`
	ID           string `json:"id" example:"ALC892 Analog"`
	Name         string `json:"name" example:"ALC892 Analog"`
	ALSADevice   string `json:"alsa_device" example:"hw:0,0" doc:"Value for audio --device with --format alsa"`
	Playback     bool   `json:"playback"`
	Capture      bool   `json:"capture"`
}

// FormatALSADevice returns the hw:card,device name ffmpeg expects.
func FormatALSADevice(card, device int) string {
	return fmt.Sprintf("hw:%d,%d", card, device)
}

// parsePCMList parses /proc/asound/pcm, whose lines look like
// "00-01: ALC892 Digital : ALC892 Digital : playback 1 : capture 1".
func parsePCMList(r io.Reader) ([]Device, error) {
	var devices []Device
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ids, rest, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		cardStr, devStr, ok := strings.Cut(ids, "-")
		if !ok {
			continue
		}
		card, err := strconv.Atoi(cardStr)
		if err != nil {
			continue
		}
		dev, err := strconv.Atoi(devStr)
		if err != nil {
			continue
		}

		d := Device{
			CardNumber:   card,
			DeviceNumber: dev,
			ALSADevice:   FormatALSADevice(card, dev),
		}
		for i, field := range strings.Split(rest, " : ") {
			field = strings.TrimSpace(field)
			switch {
			case i == 0:
				d.ID = field
			case i == 1:
				d.Name = field
			case strings.HasPrefix(field, "playback"):
				d.Playback = true
			case strings.HasPrefix(field, "capture"):
				d.Capture = true
			}
		}
		devices = append(devices, d)
	}
	return devices, scanner.Err()
}

// CaptureDevices filters devices down to those that can record.
func CaptureDevices(devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if d.Capture {
			out = append(out, d)
		}
	}
	return out
}
