package aprs

import (
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

var ErrMeasure = errors.New("measure is not numeric")

// Measure is raw numeric value as received from telemetry store.
// Conversion to number is checked by encoder, not at ingestion,
// so that bad altitude only skips position frame.
type Measure string

func MeasureFloat(f float64) Measure {
	return Measure(strconv.FormatFloat(f, 'f', -1, 64))
}

// Round returns value rounded half away from zero.
func (m Measure) Round() (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(m)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Annotatef(ErrMeasure, "value=%q", string(m))
	}
	return int(math.Round(f)), nil
}

// Sample is latest state of one station.
type Sample struct { //nolint:maligned
	Source Node
	Dest   Node

	// NMEA ddmm.mmmm / dddmm.mmmm
	Latitude     string
	Longitude    string
	LatitudeDir  string // N|S
	LongitudeDir string // E|W
	Altitude     Measure
	Speed        Measure
	Fix          int

	Analog    [4]int
	BoardTemp int
	GPIO      uint8
	RF        uint8
}

func (s *Sample) HasFix() bool { return s.Fix > 0 }
