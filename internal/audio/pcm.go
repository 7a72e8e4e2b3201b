package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// pumpS16LE reads little-endian 16-bit mono PCM from r and writes it to the
// ring, stamping each chunk with its arrival time. Returns on read error;
// io.EOF is reported as nil.
func pumpS16LE(r io.Reader, ring *Ring, now func() time.Time) error {
	buf := make([]byte, 4096)
	var carry []byte // odd trailing byte from the previous read

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := buf[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
				carry = nil
			}
			if len(data)%2 == 1 {
				carry = []byte{data[len(data)-1]}
				data = data[:len(data)-1]
			}
			ring.Write(decodeS16LE(data), now())
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func decodeS16LE(p []byte) []float64 {
	out := make([]float64, len(p)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(p[i*2:]))) / 32768.0
	}
	return out
}
