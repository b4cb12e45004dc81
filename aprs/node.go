package aprs

import (
	"strconv"
	"strings"
)

// Node is station address on relay network, e.g. N0CALL-1.
type Node struct {
	Callsign string
	ID       int
}

func (n Node) String() string { return n.Callsign + "-" + strconv.Itoa(n.ID) }

// Local sample is originated by the station it is addressed to.
// Equality is by address string, same as relay network compares them.
func (s *Sample) Local() bool { return s.Source.String() == s.Dest.String() }

// header writes `node>dest:` or `node>dest,qconstruct,destNode:`
func header(b *strings.Builder, c *Config, s *Sample) {
	b.WriteString(s.Source.String())
	b.WriteByte('>')
	b.WriteString(c.DestAddress)
	if !s.Local() {
		b.WriteByte(',')
		b.WriteString(c.QConstruct)
		b.WriteByte(',')
		b.WriteString(s.Dest.String())
	}
	b.WriteByte(':')
}

func frame(c *Config, s *Sample, body string) string {
	var b strings.Builder
	b.Grow(64 + len(body))
	header(&b, c, s)
	b.WriteString(body)
	b.WriteByte(LineEnd)
	return b.String()
}
