package aprs

import "strings"

const (
	IOSourceGPIO = "gpio"
	IOSourceRF   = "rf"
)

const (
	NumAnalog   = 5
	NumDigital  = 8
	NumEquation = NumAnalog * 3
)

const LineEnd = '\r'

// Default datatype is position without timestamp, no messaging.
const DefaultDataTypeIdent = "!"

// Max width of UNIT/PARM fields per APRS 1.0 chapter 13.
var (
	analogWidth  = [NumAnalog]int{6, 6, 5, 5, 4}
	digitalWidth = [NumDigital]int{5, 4, 3, 3, 3, 2, 2, 2}
)

// Config is static protocol configuration, read-only after load.
// Local* variants apply to self originated samples.
type Config struct { //nolint:maligned
	QConstruct     string `hcl:"qconstruct"`
	DataTypeIdent  string `hcl:"datatype_ident"`
	DestAddress    string `hcl:"dest_address"`
	SymbolTable    string `hcl:"symbol_table"`
	Symbol         string `hcl:"symbol"`
	AltSymbolTable string `hcl:"alt_symbol_table"`
	AltSymbol      string `hcl:"alt_symbol"`
	Comment        string `hcl:"comment"`
	AltComment     string `hcl:"alt_comment"`
	IOSource       string `hcl:"io_source"` // gpio|rf

	Units         []string `hcl:"units"`
	Labels        []string `hcl:"labels"`
	AnalogParams  []string `hcl:"analog_params"`
	DigitalParams []string `hcl:"digital_params"`
	Equations     []string `hcl:"equations"`
}

// DefaultEquations is identity a=0 b=1 c=0 for every analog channel.
func DefaultEquations() []string {
	eq := make([]string, 0, NumEquation)
	for i := 0; i < NumAnalog; i++ {
		eq = append(eq, "0", "1", "0")
	}
	return eq
}

func (c *Config) equations() []string {
	if len(c.Equations) == 0 {
		return DefaultEquations()
	}
	return c.Equations
}

func (c *Config) dataTypeIdent() string {
	if c.DataTypeIdent == "" {
		return DefaultDataTypeIdent
	}
	return c.DataTypeIdent
}

// Truncate cuts s to at most n characters (runes, not bytes).
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Every field appears even if not configured, as empty string.
func joinFields(b *strings.Builder, analog, digital []string) {
	for i, w := range analogWidth {
		if i != 0 {
			b.WriteByte(',')
		}
		b.WriteString(Truncate(index(analog, i), w))
	}
	for i, w := range digitalWidth {
		b.WriteByte(',')
		b.WriteString(Truncate(index(digital, i), w))
	}
}

func index(ss []string, i int) string {
	if i < len(ss) {
		return ss[i]
	}
	return ""
}
