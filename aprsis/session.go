package aprsis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faradayrf/aprsgate/helpers"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const (
	DefaultClientID       = "aprsgate"
	DefaultNetworkTimeout = 30 * time.Second
	DefaultRetryDelay     = 10 * time.Second
)

var ErrClosing = fmt.Errorf("closing")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type SessionOptions struct {
	Server         string // host:port
	Callsign       string
	Passcode       int
	ClientID       string
	RetryDelay     time.Duration
	NetworkTimeout time.Duration
	Dial           DialFunc
	Log            *log2.Log
}

// Session is APRS-IS client connection with transparent reconnect.
type Session struct { //nolint:maligned
	sync.Mutex // protects current
	alive      *alive.Alive
	backoff    *helpers.Backoff
	connecting sync.Mutex
	current    *lineConn
	opt        *SessionOptions
	state      int32
	stat       SessionStat
}

func NewSession(opt *SessionOptions) (*Session, error) {
	if _, _, err := net.SplitHostPort(opt.Server); err != nil {
		return nil, errors.Annotatef(err, "config error aprsis server=%s", opt.Server)
	}
	if opt.Callsign == "" || strings.ContainsAny(opt.Callsign, " \r\n") {
		return nil, errors.NotValidf("config error aprsis callsign=%q", opt.Callsign)
	}
	if opt.ClientID == "" {
		opt.ClientID = DefaultClientID
	}
	if strings.ContainsAny(opt.ClientID, "\"\r\n") {
		return nil, errors.NotValidf("config error aprsis client id=%q", opt.ClientID)
	}
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = DefaultRetryDelay
	}
	if opt.NetworkTimeout <= 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.Dial == nil {
		dialer := &net.Dialer{Timeout: opt.NetworkTimeout}
		opt.Dial = dialer.DialContext
	}
	s := &Session{
		alive:   alive.NewAlive(),
		backoff: helpers.NewBackoffFixed(opt.RetryDelay),
		opt:     opt,
	}
	return s, nil
}

// Close stops reconnect attempts, closes connection and waits reader goroutine.
func (s *Session) Close() error {
	s.alive.Stop()
	s.Lock()
	conn := s.current
	s.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
		if err == ErrClosing {
			err = nil
		}
	}
	s.alive.Wait()
	s.setState(StateDisconnected)
	return err
}

// Connect returns when session is authenticated, ctx is done or session is closed.
// Connection errors are logged and retried after RetryDelay, forever.
func (s *Session) Connect(ctx context.Context) error {
	if !s.alive.Add(1) {
		return ErrClosing
	}
	defer s.alive.Done()
	_, err := s.mustConn(ctx)
	return err
}

// Send writes one complete frame, reconnecting first if needed.
// Write error drops the frame, there is no retry. Broken connection is closed
// and restored by next Send or Connect.
func (s *Session) Send(ctx context.Context, frame string) error {
	if !s.alive.Add(1) {
		return ErrClosing
	}
	defer s.alive.Done()

	conn, err := s.mustConn(ctx)
	if err != nil {
		return err
	}
	if err = conn.send(ctx, []byte(frame)); err != nil {
		s.stat.Drop.Add(1)
		s.opt.Log.Errorf("aprsis: frame dropped err=%v frame=%q", err, frame)
		return err
	}
	s.opt.Log.Debugf("aprsis: sent %q", frame)
	return nil
}

func (s *Session) State() State        { return State(atomic.LoadInt32(&s.state)) }
func (s *Session) Stat() *SessionStat { return &s.stat }

func (s *Session) connect(ctx context.Context) (*lineConn, error) {
	netConn, err := s.opt.Dial(ctx, "tcp", s.opt.Server)
	if err != nil {
		return nil, errors.Annotatef(err, "dial server=%s", s.opt.Server)
	}
	s.setState(StateConnecting)
	conn := newLineConn(netConn, &s.stat, s.opt.Log, s.opt.NetworkTimeout)
	conn.onDie = s.onConnDie
	if err = conn.send(ctx, []byte(s.loginLine())); err != nil {
		return nil, errors.Annotatef(err, "login server=%s", s.opt.Server)
	}
	return conn, nil
}

func (s *Session) loginLine() string {
	return fmt.Sprintf("user %s pass %d vers \"%s\" \r", s.opt.Callsign, s.opt.Passcode, s.opt.ClientID)
}

func (s *Session) getConn() *lineConn {
	s.Lock()
	defer s.Unlock()
	if s.current != nil && s.current.Closed() {
		s.current = nil
	}
	return s.current
}

func (s *Session) mustConn(ctx context.Context) (*lineConn, error) {
	if conn := s.getConn(); conn != nil {
		return conn, nil
	}
	s.connecting.Lock()
	defer s.connecting.Unlock()
	for {
		// concurrent caller may have connected while we waited
		if conn := s.getConn(); conn != nil {
			return conn, nil
		}
		delay := s.backoff.DelayBefore()
		if delay > 0 {
			s.opt.Log.Debugf("aprsis: reconnect delay=%s", delay)
		}
		if err := helpers.Sleep(ctx, s.alive, delay, ErrClosing); err != nil {
			return nil, err
		}
		if !s.alive.IsRunning() {
			return nil, ErrClosing
		}
		conn, err := s.connect(ctx)
		if err != nil {
			s.backoff.Failure()
			s.setState(StateDisconnected)
			s.opt.Log.Errorf("aprsis: connect err=%v retry in %s", err, s.opt.RetryDelay)
			continue
		}
		s.backoff.Reset()
		s.stat.Conn.Add(1)
		s.Lock()
		s.current = conn
		s.Unlock()
		s.setState(StateAuthenticated)
		s.opt.Log.Infof("aprsis: connected server=%s callsign=%s", s.opt.Server, s.opt.Callsign)
		s.startReader(conn)
		return conn, nil
	}
}

func (s *Session) onConnDie(conn *lineConn) {
	s.Lock()
	isCurrent := s.current == conn
	s.Unlock()
	if isCurrent {
		s.setState(StateDisconnected)
	}
}

func (s *Session) startReader(conn *lineConn) {
	if !s.alive.Add(1) {
		_ = conn.Close()
		return
	}
	go func() {
		defer s.alive.Done()
		conn.readLoop(func(line string) {
			if strings.HasPrefix(line, "# logresp") {
				s.opt.Log.Infof("aprsis: %s", line)
			} else {
				s.opt.Log.Debugf("aprsis: recv %s", line)
			}
		})
		if err := conn.Err(); err != ErrClosing {
			s.opt.Log.Errorf("aprsis: connection lost err=%v idle=%s", err, conn.SinceLastRecv())
		}
	}()
}

func (s *Session) setState(st State) { atomic.StoreInt32(&s.state, int32(st)) }
