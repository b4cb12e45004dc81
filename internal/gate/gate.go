// Package gate is the polling loop: fetch latest samples, encode every
// message kind for every station, send frames, sleep, repeat.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/faradayrf/aprsgate/aprs"
	"github.com/faradayrf/aprsgate/helpers"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const DefaultRate = 60 * time.Second

var ErrStopped = fmt.Errorf("gate stopped")

type Fetcher interface {
	Samples(ctx context.Context) ([]aprs.Sample, error)
}

type Sender interface {
	Send(ctx context.Context, frame string) error
}

type Options struct {
	Fetcher  Fetcher
	Sender   Sender
	Config   *aprs.Config
	Sequence *aprs.Sequence // nil starts from 0
	Rate     time.Duration
	Log      *log2.Log
	OnCycle  func(CycleStat, error)
}

type CycleStat struct {
	Samples  int
	Sent     int
	Skipped  int // encode errors
	Failed   int // send errors
	Duration time.Duration
}

func (cs CycleStat) String() string {
	return fmt.Sprintf("samples=%d sent=%d skipped=%d failed=%d duration=%s",
		cs.Samples, cs.Sent, cs.Skipped, cs.Failed, cs.Duration)
}

type Gate struct {
	alive *alive.Alive
	opt   Options
	seq   *aprs.Sequence
}

func New(opt Options) (*Gate, error) {
	if opt.Fetcher == nil || opt.Sender == nil {
		return nil, errors.NotValidf("code error gate Fetcher or Sender=nil")
	}
	if opt.Config == nil {
		return nil, errors.NotValidf("code error gate Config=nil")
	}
	if opt.Rate <= 0 {
		opt.Rate = DefaultRate
	}
	g := &Gate{
		alive: alive.NewAlive(),
		opt:   opt,
		seq:   opt.Sequence,
	}
	if g.seq == nil {
		g.seq = aprs.NewSequence(0)
	}
	return g, nil
}

// Run repeats Cycle then sleeps Rate, until ctx is done or Stop.
// Cycle errors are logged, only shutdown ends the loop.
func (g *Gate) Run(ctx context.Context) error {
	if !g.alive.Add(1) {
		return ErrStopped
	}
	defer g.alive.Done()

	for {
		st, err := g.Cycle(ctx)
		if g.opt.OnCycle != nil {
			g.opt.OnCycle(st, err)
		}
		switch {
		case err == nil:
			g.opt.Log.Infof("gate: cycle %s", st)
		case ctx.Err() != nil:
			return ctx.Err()
		case !g.alive.IsRunning():
			return ErrStopped
		default:
			g.opt.Log.Errorf("gate: cycle err=%v", err)
		}
		if err := helpers.Sleep(ctx, g.alive, g.opt.Rate, ErrStopped); err != nil {
			return err
		}
	}
}

// Stop makes Run return ErrStopped and waits for it.
func (g *Gate) Stop() {
	g.alive.Stop()
	g.alive.Wait()
}

// Cycle does one pass. Frames are grouped by kind: all positions, then all
// telemetry and so on, stations in fetcher order within each kind.
// Encode error skips one frame, send error drops one frame, rest of batch continues.
// Error is returned when samples could not be fetched or on shutdown.
func (g *Gate) Cycle(ctx context.Context) (CycleStat, error) {
	var st CycleStat
	started := time.Now()

	samples, err := g.opt.Fetcher.Samples(ctx)
	if err != nil {
		st.Duration = time.Since(started)
		return st, errors.Annotate(err, "fetch")
	}
	st.Samples = len(samples)
	for i := range samples {
		if !samples[i].HasFix() {
			g.opt.Log.Warningf("gate: node=%s no GPS fix", samples[i].Source)
		}
	}

	for _, kind := range aprs.Kinds {
		for i := range samples {
			if err := ctx.Err(); err != nil {
				st.Duration = time.Since(started)
				return st, err
			}
			s := &samples[i]
			frame, err := aprs.Encode(kind, g.opt.Config, s, g.seq)
			if err != nil {
				st.Skipped++
				g.opt.Log.Errorf("gate: encode kind=%s node=%s err=%v", kind, s.Source, err)
				continue
			}
			if err = g.opt.Sender.Send(ctx, frame); err != nil {
				st.Failed++
				if ctx.Err() != nil || !g.alive.IsRunning() {
					st.Duration = time.Since(started)
					return st, err
				}
				continue
			}
			st.Sent++
		}
	}
	st.Duration = time.Since(started)
	return st, nil
}
