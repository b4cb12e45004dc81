package aprs

import (
	"fmt"

	"github.com/juju/errors"
)

type Kind uint8

const (
	KindPosition Kind = iota
	KindTelemetry
	KindLabels
	KindParameters
	KindEquations
)

// Kinds in emission order.
var Kinds = []Kind{KindPosition, KindTelemetry, KindLabels, KindParameters, KindEquations}

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindTelemetry:
		return "telemetry"
	case KindLabels:
		return "labels"
	case KindParameters:
		return "parameters"
	case KindEquations:
		return "equations"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Encode dispatches to encoder of given kind. seq is used only by KindTelemetry.
func Encode(kind Kind, c *Config, s *Sample, seq *Sequence) (string, error) {
	switch kind {
	case KindPosition:
		return Position(c, s)
	case KindTelemetry:
		return Telemetry(c, s, seq)
	case KindLabels:
		return Labels(c, s)
	case KindParameters:
		return Parameters(c, s)
	case KindEquations:
		return Equations(c, s)
	}
	return "", errors.Errorf("code error unknown kind=%s", kind)
}
