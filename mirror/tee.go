package mirror

import (
	"context"
	"expvar"
	"strings"
	"time"

	"github.com/faradayrf/aprsgate/aprsis"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
)

const DefaultPublishTimeout = time.Second

type Sender interface {
	Send(ctx context.Context, frame string) error
}

type Publisher interface {
	Publish(ctx context.Context, node string, frame string) error
}

// Tee sends every frame to Relay first, then publishes copy to Mirror.
// Mirror errors are logged and counted, never returned.
// Nothing is published once relay is closing or ctx is done.
type Tee struct {
	Relay   Sender
	Mirror  Publisher
	Timeout time.Duration
	Log     *log2.Log

	Published expvar.Int
	Failed    expvar.Int
}

func (t *Tee) Send(ctx context.Context, frame string) error {
	err := t.Relay.Send(ctx, frame)
	if t.Mirror == nil || errors.Cause(err) == aprsis.ErrClosing || ctx.Err() != nil {
		return err
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	pubctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if perr := t.Mirror.Publish(pubctx, FrameNode(frame), frame); perr != nil {
		t.Failed.Add(1)
		t.Log.Debugf("mirror: publish err=%v", perr)
	} else {
		t.Published.Add(1)
	}
	return err
}

// FrameNode returns source address of frame, text before '>'.
func FrameNode(frame string) string {
	if i := strings.IndexByte(frame, '>'); i > 0 {
		return frame[:i]
	}
	return "unknown"
}
