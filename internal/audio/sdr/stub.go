//go:build !rtlsdr

package sdr

import (
	"errors"
	"io"

	"github.com/christian-lee/ft8mon/internal/audio"
)

// ErrNotBuilt is returned when the binary was built without the rtlsdr tag.
var ErrNotBuilt = errors.New("rtlsdr support not built in (rebuild with -tags rtlsdr)")

func Open(int, float64, audio.Config) (audio.Source, error) {
	return nil, ErrNotBuilt
}

// List writes nothing without rtlsdr support.
func List(io.Writer) error { return nil }
