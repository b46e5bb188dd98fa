package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/framerec/internal/audio"
	"github.com/smazurov/framerec/internal/screen"
	"github.com/spf13/cobra"
)

// CreateDisplaysCmd creates the displays command.
func CreateDisplaysCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "displays",
		Short: "List displays that can be recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			displays := screen.ListDisplays()
			if len(displays) == 0 {
				return fmt.Errorf("no active displays found")
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), displays)
			}
			return writeDisplays(cmd.OutOrStdout(), displays)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func writeDisplays(w io.Writer, displays []screen.Display) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSIZE\tPOSITION\tPRIMARY")
	for _, d := range displays {
		fmt.Fprintf(tw, "%d\t%dx%d\t%d,%d\t%s\n", d.Index, d.Width, d.Height, d.X, d.Y, yesNo(d.Primary))
	}
	return tw.Flush()
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List ALSA audio devices",
		Long:  `Lists PCM devices from /proc/asound. Use the printed name with "audio --format alsa --device".`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return err
			}
			if !all {
				devices = audio.CaptureDevices(devices)
			}
			return writeDevices(cmd.OutOrStdout(), devices)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include playback-only devices")
	return cmd
}

func writeDevices(w io.Writer, devices []audio.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No audio devices found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tCAPTURE\tPLAYBACK")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ALSADevice, d.Name, yesNo(d.Capture), yesNo(d.Playback))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
