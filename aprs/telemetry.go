package aprs

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// Digital returns 8 bit digital channels of sample selected by IOSource.
func (c *Config) Digital(s *Sample) (uint8, error) {
	switch c.IOSource {
	case IOSourceGPIO:
		return s.GPIO, nil
	case IOSourceRF:
		return s.RF, nil
	default:
		return 0, errors.NotValidf("io_source=%q (valid: gpio, rf)", c.IOSource)
	}
}

// Telemetry encodes `T#sss,a0,a1,a2,a3,temp,bbbbbbbb` frame.
// Analog values are divided by 16. Sequence advances once per successful call.
func Telemetry(c *Config, s *Sample, seq *Sequence) (string, error) {
	digital, err := c.Digital(s)
	if err != nil {
		return "", errors.Annotatef(err, "telemetry node=%s", s.Source)
	}
	var b strings.Builder
	b.WriteString("T#")
	b.WriteString(fmt.Sprintf("%03d", seq.Next()))
	for _, a := range s.Analog {
		b.WriteString(fmt.Sprintf(",%03d", floorDiv(a, 16)))
	}
	b.WriteString(fmt.Sprintf(",%03d", floorDiv(s.BoardTemp, 16)))
	b.WriteString(fmt.Sprintf(",%08b", digital))
	return frame(c, s, b.String()), nil
}

// Labels encodes UNIT message: analog units and digital channel labels.
func Labels(c *Config, s *Sample) (string, error) {
	return frame(c, s, selfMessage(s, "UNIT.", func(b *strings.Builder) {
		joinFields(b, c.Units, c.Labels)
	})), nil
}

// Parameters encodes PARM message: analog and digital channel names.
func Parameters(c *Config, s *Sample) (string, error) {
	return frame(c, s, selfMessage(s, "PARM.", func(b *strings.Builder) {
		joinFields(b, c.AnalogParams, c.DigitalParams)
	})), nil
}

// Equations encodes EQNS message: a,b,c coefficients for 5 analog channels, not truncated.
func Equations(c *Config, s *Sample) (string, error) {
	eqs := c.equations()
	if len(eqs) != NumEquation {
		return "", errors.NotValidf("equations count=%d expected=%d", len(eqs), NumEquation)
	}
	return frame(c, s, selfMessage(s, "EQNS.", func(b *strings.Builder) {
		b.WriteString(strings.Join(eqs, ","))
	})), nil
}

// Telemetry metadata is APRS message addressed to the station itself.
func selfMessage(s *Sample, kind string, f func(*strings.Builder)) string {
	var b strings.Builder
	b.WriteByte(':')
	b.WriteString(s.Source.String())
	b.WriteString(" :")
	b.WriteString(kind)
	f(&b)
	return b.String()
}

// Rounds toward negative infinity, unlike Go integer division.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
