package decoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// jt9 FT8 line: HHMMSS  SNR  DT  Freq  ~  Message [annotation]
// Example: 203530   2  0.1 2535 ~  EI3CTB RT6C -16
var jt9LinePattern = regexp.MustCompile(`^(\d{4,6})\s+(-?\d+)\s+(-?[\d.]+)\s+(\d+)\s+~\s+(.+)$`)

// AP decodes carry "a1".."a7" after the message; low-confidence ones carry "?".
var annotationPattern = regexp.MustCompile(`^(.*\S)\s{2,}(a\d|\?)$`)

// ParseJT9Line turns one line of jt9 stdout into a Record. jt9 reports DT
// relative to the nominal sync offset; Record.TimeOffset is from cycle start.
func ParseJT9Line(line string, syncOffset time.Duration) (Record, error) {
	m := jt9LinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Record{}, fmt.Errorf("not a decode line: %q", line)
	}

	snr, err := strconv.Atoi(m[2])
	if err != nil {
		return Record{}, fmt.Errorf("invalid SNR: %w", err)
	}
	dt, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid DT: %w", err)
	}
	hz, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid frequency: %w", err)
	}

	text := strings.TrimSpace(m[5])
	var annotation string
	if am := annotationPattern.FindStringSubmatch(text); am != nil {
		text, annotation = am[1], am[2]
	}
	text = strings.Join(strings.Fields(text), " ")

	return Record{
		Text:       text,
		Hz0:        hz,
		Hz1:        hz,
		TimeOffset: dt + syncOffset.Seconds(),
		Annotation: annotation,
		SNR:        float64(snr),
	}, nil
}
