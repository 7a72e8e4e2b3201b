package report

import (
	"encoding/json"
	"time"
)

// Spot is the JSON form of a decode published to the spot log, MQTT and
// the web feed.
type Spot struct {
	CycleStart    time.Time `json:"cycle_start"`
	Message       string    `json:"message"`
	SNR           int       `json:"snr"`
	TimeOffset    float64   `json:"dt"`
	FreqHz        float64   `json:"freq_hz"`
	DriftHz       float64   `json:"drift_hz,omitempty"`
	CorrectedBits int       `json:"corrected_bits"`
	Pass          int       `json:"pass"`
	Annotation    string    `json:"annotation,omitempty"`
	Station       string    `json:"station,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
}

// NewSpot converts a decode. The time offset is stored relative to
// syncOffset, as it is printed.
func NewSpot(d Decode, syncOffset time.Duration, station, runID string) Spot {
	r := d.Record
	return Spot{
		CycleStart:    d.CycleStart.UTC(),
		Message:       d.Text,
		SNR:           int(r.SNR),
		TimeOffset:    r.TimeOffset - syncOffset.Seconds(),
		FreqHz:        r.Hz0,
		DriftHz:       r.Hz1 - r.Hz0,
		CorrectedBits: r.CorrectedBits,
		Pass:          r.Pass,
		Annotation:    r.Annotation,
		Station:       station,
		RunID:         runID,
	}
}

func (s Spot) JSON() ([]byte, error) {
	return json.Marshal(s)
}
