package aprs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

var ErrCoordinate = errors.New("invalid coordinate")

// DegDecMin converts NMEA latitude ddmm.mmmm and longitude dddmm.mmmm
// into APRS fixed width ddmm.mm and dddmm.mm.
// Degrees are copied as is, minutes rounded to 2 places and zero padded to 5 characters.
func DegDecMin(latitude, longitude string) (lat, lon string, err error) {
	if lat, err = degDecMin(latitude, 2); err != nil {
		return "", "", errors.Annotate(err, "latitude")
	}
	if lon, err = degDecMin(longitude, 3); err != nil {
		return "", "", errors.Annotate(err, "longitude")
	}
	return lat, lon, nil
}

func degDecMin(s string, degWidth int) (string, error) {
	if len(s) <= degWidth {
		return "", errors.Annotatef(ErrCoordinate, "value=%q", s)
	}
	deg := s[:degWidth]
	for i := 0; i < len(deg); i++ {
		if deg[i] < '0' || deg[i] > '9' {
			return "", errors.Annotatef(ErrCoordinate, "value=%q", s)
		}
	}
	min, err := strconv.ParseFloat(s[degWidth:], 64)
	if err != nil || min < 0 || min >= 60 {
		return "", errors.Annotatef(ErrCoordinate, "value=%q", s)
	}
	// 59.996 must not round up to 60.00, that would change degrees
	min = math.Min(math.Round(min*100)/100, 59.99)
	return deg + fmt.Sprintf("%05.2f", min), nil
}

// Position encodes position report frame.
// Altitude (feet) and speed are rounded to integers, zero padded to 6 and 3 digits.
// Returns ErrMeasure or ErrCoordinate when sample can not be encoded, frame should be skipped.
// Missing GPS fix is not an error here, see Sample.HasFix.
func Position(c *Config, s *Sample) (string, error) {
	altitude, err := s.Altitude.Round()
	if err != nil {
		return "", errors.Annotatef(err, "position node=%s altitude", s.Source)
	}
	speed, err := s.Speed.Round()
	if err != nil {
		return "", errors.Annotatef(err, "position node=%s speed", s.Source)
	}
	lat, lon, err := DegDecMin(s.Latitude, s.Longitude)
	if err != nil {
		return "", errors.Annotatef(err, "position node=%s", s.Source)
	}

	table, symbol, comment := c.SymbolTable, c.Symbol, c.Comment
	if s.Local() {
		table, symbol, comment = c.AltSymbolTable, c.AltSymbol, c.AltComment
	}

	var b strings.Builder
	b.WriteString(c.dataTypeIdent())
	b.WriteString(lat)
	b.WriteString(s.LatitudeDir)
	b.WriteString(table)
	b.WriteString(lon)
	b.WriteString(s.LongitudeDir)
	b.WriteString(symbol)
	b.WriteString(".../")
	b.WriteString(fmt.Sprintf("%03d", speed))
	b.WriteString("/A=")
	b.WriteString(fmt.Sprintf("%06d", altitude))
	b.WriteString(comment)
	return frame(c, s, b.String()), nil
}
