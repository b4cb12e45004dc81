package aprsis

// Values are read and modified atomically, but not consistently,
// i.e. it is possible to read .Count=1 .Size=0 because Size has not updated yet.

import (
	"expvar"
	"fmt"
)

type SessionStat struct {
	Conn expvar.Int // successful logins
	Drop expvar.Int // frames lost on write error
	Recv CountSizePair
	Send CountSizePair
}

func (ss *SessionStat) String() string {
	return fmt.Sprintf(`{"conn":%d,"drop":%d,"recv":%s,"send":%s}`,
		ss.Conn.Value(), ss.Drop.Value(), ss.Recv.String(), ss.Send.String())
}

// Count is lines (frames), Size is bytes including TCP overhead estimate.
type CountSizePair struct {
	Count expvar.Int
	Size  expvar.Int
}

func (csp *CountSizePair) String() string {
	return fmt.Sprintf(`{"count":%d,"size":%d}`, csp.Count.Value(), csp.Size.Value())
}
