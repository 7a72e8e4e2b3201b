//go:build noportaudio

package soundcard

import (
	"errors"
	"io"

	"github.com/christian-lee/ft8mon/internal/audio"
)

// ErrNotBuilt is returned when the binary was built with the noportaudio tag.
var ErrNotBuilt = errors.New("sound card support not built in (rebuild without -tags noportaudio)")

func Open(string, int, audio.Config) (audio.Source, error) {
	return nil, ErrNotBuilt
}

// List writes nothing without portaudio.
func List(io.Writer) error { return nil }
