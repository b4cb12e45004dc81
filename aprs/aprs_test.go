package aprs_test

import (
	"strings"
	"testing"

	"github.com/faradayrf/aprsgate/aprs"
)

var (
	testLocal  = aprs.Node{Callsign: "N0CALL", ID: 1}
	testRemote = aprs.Node{Callsign: "N0CALL", ID: 2}
)

func testConfig() *aprs.Config {
	return &aprs.Config{
		QConstruct:     "qAR",
		DataTypeIdent:  "!",
		DestAddress:    "APRS",
		SymbolTable:    "/",
		Symbol:         "-",
		AltSymbolTable: "\\",
		AltSymbol:      "F",
		Comment:        " remote",
		AltComment:     " local",
		IOSource:       aprs.IOSourceGPIO,
		Units:          []string{"Volts", "Volts", "Volts", "Volts", "degC"},
		Labels:         []string{"LED1", "LED2", "GPIO1", "GPIO2", "GPIO3", "G4", "G5", "G6"},
		AnalogParams:   []string{"ADC0", "ADC1", "ADC3", "ADC6", "Temp"},
		DigitalParams:  []string{"P0", "P1", "P2", "P3", "P4", "P5", "P6", "P7"},
		Equations: []string{
			"0", "0.00080566", "0",
			"0", "0.00080566", "0",
			"0", "0.00080566", "0",
			"0", "0.00080566", "0",
			"0", "1", "0",
		},
	}
}

func testSample(source, dest aprs.Node) *aprs.Sample {
	return &aprs.Sample{
		Source:       source,
		Dest:         dest,
		Latitude:     "3746.56",
		Longitude:    "12225.30",
		LatitudeDir:  "N",
		LongitudeDir: "W",
		Altitude:     aprs.MeasureFloat(120.4),
		Speed:        aprs.MeasureFloat(5.6),
		Fix:          1,
		Analog:       [4]int{1600, 32, 15, 4095},
		BoardTemp:    400,
		GPIO:         0x05,
		RF:           0xa0,
	}
}

func mustEncode(t testing.TB, kind aprs.Kind, c *aprs.Config, s *aprs.Sample, seq *aprs.Sequence) string {
	t.Helper()
	f, err := aprs.Encode(kind, c, s, seq)
	if err != nil {
		t.Fatalf("encode kind=%s err=%v", kind, err)
	}
	if !strings.HasSuffix(f, "\r") || strings.Count(f, "\r") != 1 || strings.Contains(f, "\n") {
		t.Fatalf("frame must end with single CR frame=%q", f)
	}
	return f
}
