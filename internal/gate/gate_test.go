package gate_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faradayrf/aprsgate/aprs"
	"github.com/faradayrf/aprsgate/internal/gate"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	samples []aprs.Sample
	err     error
}

func (f *fakeFetcher) Samples(ctx context.Context) ([]aprs.Sample, error) {
	return f.samples, f.err
}

type recordSender struct {
	sync.Mutex
	frames []string
	fail   func(n int, frame string) error
}

func (r *recordSender) Send(ctx context.Context, frame string) error {
	r.Lock()
	defer r.Unlock()
	if r.fail != nil {
		if err := r.fail(len(r.frames), frame); err != nil {
			return err
		}
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordSender) Frames() []string {
	r.Lock()
	defer r.Unlock()
	return append([]string(nil), r.frames...)
}

var (
	nodeLocal  = aprs.Node{Callsign: "N0CALL", ID: 1}
	nodeRemote = aprs.Node{Callsign: "N0CALL", ID: 2}
)

func testSample(source aprs.Node) aprs.Sample {
	return aprs.Sample{
		Source:       source,
		Dest:         nodeLocal,
		Latitude:     "3746.56",
		Longitude:    "12225.30",
		LatitudeDir:  "N",
		LongitudeDir: "W",
		Altitude:     "120.4",
		Speed:        "5.6",
		Fix:          1,
		Analog:       [4]int{1600, 32, 15, 4095},
		BoardTemp:    400,
		GPIO:         5,
	}
}

func testConfig() *aprs.Config {
	return &aprs.Config{
		QConstruct:     "qAR",
		DestAddress:    "APRS",
		SymbolTable:    "/",
		Symbol:         "-",
		AltSymbolTable: `\`,
		AltSymbol:      "F",
		IOSource:       aprs.IOSourceGPIO,
	}
}

func newGate(t testing.TB, f gate.Fetcher, s gate.Sender) *gate.Gate {
	g, err := gate.New(gate.Options{
		Fetcher: f,
		Sender:  s,
		Config:  testConfig(),
		Rate:    time.Hour,
		Log:     log2.NewTest(t, log2.LDebug),
	})
	require.NoError(t, err)
	return g
}

func frameKind(frame string) string {
	body := frame[strings.IndexByte(frame, ':')+1:]
	switch {
	case strings.HasPrefix(body, "!"):
		return "position"
	case strings.HasPrefix(body, "T#"):
		return "telemetry"
	case strings.Contains(body, ":UNIT."):
		return "labels"
	case strings.Contains(body, ":PARM."):
		return "parameters"
	case strings.Contains(body, ":EQNS."):
		return "equations"
	}
	return "unknown"
}

func TestCycleOrder(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{samples: []aprs.Sample{testSample(nodeLocal), testSample(nodeRemote)}}
	s := &recordSender{}
	g := newGate(t, f, s)

	st, err := g.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Samples)
	assert.Equal(t, 10, st.Sent)
	assert.Equal(t, 0, st.Skipped)
	assert.Equal(t, 0, st.Failed)

	frames := s.Frames()
	require.Len(t, frames, 10)
	for i, kind := range aprs.Kinds {
		assert.Equal(t, kind.String(), frameKind(frames[2*i]), "frame=%q", frames[2*i])
		assert.Equal(t, kind.String(), frameKind(frames[2*i+1]), "frame=%q", frames[2*i+1])
		assert.True(t, strings.HasPrefix(frames[2*i], "N0CALL-1>APRS:"), "frame=%q", frames[2*i])
		assert.True(t, strings.HasPrefix(frames[2*i+1], "N0CALL-2>APRS,qAR,N0CALL-1:"), "frame=%q", frames[2*i+1])
	}
	assert.Equal(t, "N0CALL-1>APRS:T#000,100,002,000,255,025,00000101\r", frames[2])
	assert.Equal(t, "N0CALL-2>APRS,qAR,N0CALL-1:T#001,100,002,000,255,025,00000101\r", frames[3])

	// sequence continues across cycles
	_, err = g.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.Frames()[12], "N0CALL-1>APRS:T#002,"), "frame=%q", s.Frames()[12])
}

func TestCycleEncodeErrorSkipsFrame(t *testing.T) {
	t.Parallel()
	bad := testSample(nodeRemote)
	bad.Altitude = "n/a"
	bad.Fix = 0
	f := &fakeFetcher{samples: []aprs.Sample{testSample(nodeLocal), bad}}
	s := &recordSender{}
	g := newGate(t, f, s)

	st, err := g.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 9, st.Sent)
	frames := s.Frames()
	assert.Equal(t, "position", frameKind(frames[0]))
	assert.Equal(t, "telemetry", frameKind(frames[1]))
	assert.True(t, strings.HasPrefix(frames[2], "N0CALL-2>"), "frame=%q", frames[2])
}

// Store null altitude or speed arrives as empty measure.
func TestCycleEmptyMeasure(t *testing.T) {
	t.Parallel()
	for _, field := range []string{"altitude", "speed"} {
		sample := testSample(nodeLocal)
		if field == "altitude" {
			sample.Altitude = ""
		} else {
			sample.Speed = ""
		}
		s := &recordSender{}
		g := newGate(t, &fakeFetcher{samples: []aprs.Sample{sample}}, s)

		st, err := g.Cycle(context.Background())
		require.NoError(t, err, field)
		assert.Equal(t, 1, st.Samples, field)
		assert.Equal(t, 4, st.Sent, field)
		assert.Equal(t, 1, st.Skipped, field)
		assert.Equal(t, 0, st.Failed, field)
		kinds := []string{}
		for _, f := range s.Frames() {
			kinds = append(kinds, frameKind(f))
		}
		assert.Equal(t, []string{"telemetry", "labels", "parameters", "equations"}, kinds, field)
	}
}

// Send error must not abort the rest of the batch.
func TestCycleSendErrorContinues(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{samples: []aprs.Sample{testSample(nodeLocal), testSample(nodeRemote)}}
	s := &recordSender{fail: func(n int, frame string) error {
		if frameKind(frame) == "telemetry" && strings.HasPrefix(frame, "N0CALL-1>") {
			return errors.New("broken pipe")
		}
		return nil
	}}
	g := newGate(t, f, s)

	st, err := g.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 9, st.Sent)
	frames := s.Frames()
	require.Len(t, frames, 9)
	assert.Equal(t, "equations", frameKind(frames[8]))
	// dropped frame still consumed sequence number
	assert.True(t, strings.HasPrefix(frames[2], "N0CALL-2>APRS,qAR,N0CALL-1:T#001,"), "frame=%q", frames[2])
}

func TestCycleFetchError(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{err: errors.New("connection refused")}
	s := &recordSender{}
	g := newGate(t, f, s)

	_, err := g.Cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, s.Frames(), 0)
}

func TestCycleEmpty(t *testing.T) {
	t.Parallel()
	s := &recordSender{}
	st, err := newGate(t, &fakeFetcher{}, s).Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gate.CycleStat{Duration: st.Duration}, st)
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cycles := 0
	g, err := gate.New(gate.Options{
		Fetcher: &fakeFetcher{samples: []aprs.Sample{testSample(nodeLocal)}},
		Sender:  &recordSender{},
		Config:  testConfig(),
		Rate:    time.Millisecond,
		Log:     log2.NewTest(t, log2.LDebug),
		OnCycle: func(st gate.CycleStat, err error) {
			cycles++
			if cycles == 3 {
				cancel()
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, context.Canceled, g.Run(ctx))
	assert.Equal(t, 3, cycles)
}

func TestRunStop(t *testing.T) {
	t.Parallel()
	s := &recordSender{}
	g := newGate(t, &fakeFetcher{samples: []aprs.Sample{testSample(nodeLocal)}}, s)
	result := make(chan error, 1)
	go func() { result <- g.Run(context.Background()) }()
	require.Eventually(t, func() bool { return len(s.Frames()) == 5 }, time.Second, time.Millisecond)
	g.Stop()
	assert.Equal(t, gate.ErrStopped, <-result)
	assert.Equal(t, gate.ErrStopped, g.Run(context.Background()))
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()
	_, err := gate.New(gate.Options{Sender: &recordSender{}, Config: testConfig()})
	assert.Error(t, err)
	_, err = gate.New(gate.Options{Fetcher: &fakeFetcher{}, Sender: &recordSender{}})
	assert.Error(t, err)
}
