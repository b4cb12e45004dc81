package aprsis

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/faradayrf/aprsgate/helpers"
	"github.com/faradayrf/aprsgate/helpers/atomic_clock"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
)

const (
	readBuffer  = 4 << 10
	tcpOverhead = 40
)

// lineConn is one TCP connection carrying CR/LF terminated text lines.
type lineConn struct {
	err        helpers.AtomicError
	last       atomic_clock.Clock
	log        *log2.Log
	net        net.Conn
	netTimeout time.Duration
	onDie      func(*lineConn)
	r          *bufio.Reader
	stat       *SessionStat
	w          io.Writer
}

func newLineConn(netConn net.Conn, stat *SessionStat, log *log2.Log, netTimeout time.Duration) *lineConn {
	c := &lineConn{
		log:        log,
		net:        netConn,
		stat:       stat,
		netTimeout: netTimeout,
	}
	if tcp, ok := c.net.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetLinger(0)
	}
	c.r = bufio.NewReaderSize(helpers.NewStatReader(c.net, &stat.Recv.Size, tcpOverhead), readBuffer)
	c.w = helpers.NewStatWriter(c.net, &stat.Send.Size, tcpOverhead)
	c.last.SetNow()
	return c
}

func (c *lineConn) Close() error { return c.die(ErrClosing) }

func (c *lineConn) Closed() bool {
	_, ok := c.err.Load()
	return ok
}

// Err returns reason connection was closed.
func (c *lineConn) Err() error {
	err, _ := c.err.Load()
	return err
}

func (c *lineConn) SinceLastRecv() time.Duration { return atomic_clock.Since(&c.last) }

func (c *lineConn) send(ctx context.Context, b []byte) error {
	if err, closed := c.err.Load(); closed {
		return errors.Annotate(err, "send on closed connection")
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.netTimeout)
	}
	if err := c.net.SetWriteDeadline(deadline); err != nil {
		err = errors.Annotate(err, "SetWriteDeadline")
		_ = c.die(err)
		return err
	}
	if err := helpers.WriteAll(c.w, b); err != nil {
		err = errors.Annotate(err, "send")
		_ = c.die(err)
		return err
	}
	c.stat.Send.Count.Add(1)
	return nil
}

// readLoop returns on first read error, connection is closed by then.
// Server sends keepalive comment about every 20 seconds, so read deadline is not set.
func (c *lineConn) readLoop(fun func(line string)) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				err = errors.Annotate(io.EOF, "closed by remote")
			}
			_ = c.die(errors.Annotate(err, "receive"))
			return
		}
		c.last.SetNow()
		c.stat.Recv.Count.Add(1)
		fun(strings.TrimRight(line, "\r\n"))
	}
}

func (c *lineConn) die(e error) error {
	if err, found := c.err.StoreOnce(e); found {
		return err
	}
	_ = c.net.Close()

	// reformat some well known errors for easier log reading
	estr := e.Error()
	if neterr, ok := errors.Cause(e).(net.Error); ok && neterr.Timeout() {
		estr = "timeout"
	} else if strings.HasSuffix(estr, "i/o timeout") {
		estr = "timeout"
	} else if strings.HasSuffix(estr, "connection reset by peer") {
		estr = "closed by remote"
	}
	c.log.Debugf("die +close local=%s remote=%s e=%s", addrString(c.net.LocalAddr()), addrString(c.net.RemoteAddr()), estr)
	if c.onDie != nil {
		c.onDie(c)
	}
	return e
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
