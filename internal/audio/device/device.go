// Package device connects audio.Open to the sound card and rtlsdr backends.
package device

import (
	"fmt"
	"io"

	"github.com/christian-lee/ft8mon/internal/audio"
	"github.com/christian-lee/ft8mon/internal/audio/sdr"
	"github.com/christian-lee/ft8mon/internal/audio/soundcard"
)

// Hardware is the audio.Hardware of the built binary.
type Hardware struct{}

var _ audio.Hardware = Hardware{}

func (Hardware) OpenSoundCard(selector string, channel int, cfg audio.Config) (audio.Source, error) {
	c, err := soundcard.Open(selector, channel, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (Hardware) OpenRTLSDR(index int, mhz float64, cfg audio.Config) (audio.Source, error) {
	r, err := sdr.Open(index, mhz, cfg)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Open is audio.Open with the built-in hardware.
func Open(selector, channel string, cfg audio.Config) (audio.Source, error) {
	return audio.Open(selector, channel, cfg, Hardware{})
}

// List writes the capture devices usable as -card selectors.
func List(w io.Writer) error {
	if err := soundcard.List(w); err != nil {
		return fmt.Errorf("sound cards: %w", err)
	}
	if err := sdr.List(w); err != nil {
		return fmt.Errorf("rtlsdr: %w", err)
	}
	return nil
}
