//go:build !noportaudio

package soundcard

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// List writes the portaudio devices that have inputs.
func List(w io.Writer) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for i, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		api := ""
		if d.HostApi != nil {
			api = d.HostApi.Name
		}
		fmt.Fprintf(w, "%2d: %s (%s) channels=%d rate=%.0f\n", i, d.Name, api, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}
