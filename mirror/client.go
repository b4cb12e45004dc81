// Package mirror publishes relayed APRS frames to MQTT broker,
// for local dashboards and debugging. Publish only, no subscriptions.
package mirror

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/faradayrf/aprsgate/helpers"
	"github.com/faradayrf/aprsgate/helpers/atomic_clock"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultReconnectDelay = 3 * time.Second
	DefaultKeepaliveSec   = 60
	DefaultTopicPrefix    = "aprsgate"
)

var ErrClientClosing = fmt.Errorf("MQTT client is closing")

type ClientOptions struct {
	BrokerURL      string
	TLS            *tls.Config
	ReconnectDelay time.Duration
	NetworkTimeout time.Duration
	KeepaliveSec   uint16
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QOS            packet.QOS
	Log            *log2.Log

	conpkt *packet.Connect
	dialer *transport.Dialer
}

// Client is publish only MQTT client.
// - NewClient() returns only configuration errors, network IO is done in background
// - Connect with clean session only
// - Unlimited reconnect attempts until Close()
// - QOS 0,1, one PUBLISH in flight
type Client struct {
	sync.Mutex

	alive   *alive.Alive
	current *brokerConn
	lastID  uint32
	opt     ClientOptions

	pubmu sync.Mutex
	ackmu sync.Mutex
	ack   *pendingAck
}

type pendingAck struct {
	id   packet.ID
	done chan struct{}
}

func NewClient(opt ClientOptions) (*Client, error) {
	if opt.QOS >= packet.QOSExactlyOnce {
		return nil, errors.NotValidf("config error mirror qos=%d (valid: 0, 1)", opt.QOS)
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReconnectDelay == 0 {
		opt.ReconnectDelay = DefaultReconnectDelay
	}
	opt.TopicPrefix = strings.TrimRight(defaultString(opt.TopicPrefix, DefaultTopicPrefix), "/")
	if u, err := url.ParseRequestURI(opt.BrokerURL); err != nil {
		return nil, errors.Annotatef(err, "config error mirror broker_url=%s", opt.BrokerURL)
	} else if u.User != nil && opt.Username == "" && opt.Password == "" {
		opt.Username = u.User.Username()
		opt.Password, _ = u.User.Password()
	}
	opt.conpkt = packet.NewConnect()
	opt.conpkt.ClientID = defaultString(opt.ClientID, opt.Username)
	opt.conpkt.KeepAlive = opt.KeepaliveSec
	opt.conpkt.CleanSession = true
	opt.conpkt.Username = opt.Username
	opt.conpkt.Password = opt.Password
	opt.dialer = transport.NewDialer(transport.DialConfig{
		TLSConfig: opt.TLS,
		Timeout:   opt.NetworkTimeout,
	})

	c := &Client{
		alive:  alive.NewAlive(),
		lastID: uint32(time.Now().UnixNano()),
		opt:    opt,
	}
	_ = c.brokerConn(true)

	c.alive.Add(1)
	go c.worker()
	return c, nil
}

// Close waits for all background goroutines, may block up to NetworkTimeout while dialing.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.alive.Stop()
	c.alive.Wait()
	c.Lock()
	bc := c.current
	c.Unlock()
	if bc != nil {
		_ = bc.die(ErrClientClosing)
		bc.alive.Wait()
	}
	return err
}

func (c *Client) Disconnect() error {
	err := client.ErrClientNotConnected
	if bc := c.brokerConn(false); bc != nil {
		if err = bc.send(packet.NewDisconnect()); err == nil {
			_ = bc.die(ErrClientClosing)
		}
	}
	return err
}

// Topic returns `<prefix>/<node>`.
func (c *Client) Topic(node string) string { return c.opt.TopicPrefix + "/" + node }

// Publish sends frame to topic of node. Waits for connection and, with QOS 1,
// for PUBACK within ctx and NetworkTimeout limits.
func (c *Client) Publish(ctx context.Context, node string, frame string) error {
	c.pubmu.Lock()
	defer c.pubmu.Unlock()

	bc, err := c.ready(ctx)
	if err != nil {
		return err
	}
	pub := packet.NewPublish()
	pub.Message = packet.Message{
		Topic:   c.Topic(node),
		Payload: []byte(frame),
		QOS:     c.opt.QOS,
	}
	if c.opt.QOS == packet.QOSAtMostOnce {
		return errors.Annotate(bc.send(pub), "send PUBLISH")
	}

	pub.ID = c.nextID()
	ack := &pendingAck{id: pub.ID, done: make(chan struct{})}
	c.setAck(ack)
	defer c.setAck(nil)
	if err = bc.send(pub); err != nil {
		return errors.Annotate(err, "send PUBLISH")
	}

	timer := time.NewTimer(c.opt.NetworkTimeout)
	defer timer.Stop()
	select {
	case <-ack.done:
		return nil

	case <-bc.alive.StopChan():
		// reader completes ack before it may die on the next packet
		select {
		case <-ack.done:
			return nil
		default:
		}
		return errors.Annotatef(bc.Err(), "PUBACK id=%d", pub.ID)

	case <-ctx.Done():
		return ctx.Err()

	case <-timer.C:
		return bc.die(errors.Timeoutf("PUBACK id=%d", pub.ID))
	}
}

// WaitReady returns nil when broker accepted connection,
// ErrClientClosing after Close() or ctx error.
func (c *Client) WaitReady(ctx context.Context) error {
	_, err := c.ready(ctx)
	return err
}

func (c *Client) ready(ctx context.Context) (*brokerConn, error) {
	const poll = 100 * time.Millisecond
	for {
		var readych, deadch <-chan struct{}
		bc := c.brokerConn(false)
		if bc != nil {
			readych, deadch = bc.ready, bc.alive.StopChan()
		}
		timer := time.NewTimer(poll)
		select {
		case <-readych:
			timer.Stop()
			if bc.alive.IsRunning() {
				return bc, nil
			}

		case <-deadch: // lost before CONNACK, worker reconnects
			timer.Stop()

		case <-timer.C:

		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()

		case <-c.alive.StopChan():
			timer.Stop()
			return nil, ErrClientClosing
		}
	}
}

func (c *Client) brokerConn(create bool) *brokerConn {
	c.Lock()
	defer c.Unlock()
	if !c.alive.IsRunning() {
		return nil
	}
	if c.current != nil && !c.current.alive.IsRunning() {
		c.current = nil
	}
	if c.current == nil && create {
		c.current = newBrokerConn(c.opt, c.onPuback)
	}
	return c.current
}

func (c *Client) nextID() packet.ID {
	u32 := atomic.AddUint32(&c.lastID, 1)
	// packet ID 0 is reserved
	return packet.ID(u32%(1<<16-1) + 1)
}

func (c *Client) setAck(ack *pendingAck) {
	c.ackmu.Lock()
	c.ack = ack
	c.ackmu.Unlock()
}

func (c *Client) onPuback(bc *brokerConn, id packet.ID) {
	c.ackmu.Lock()
	ack := c.ack
	if ack != nil && ack.id == id {
		c.ack = nil
	}
	c.ackmu.Unlock()
	switch {
	case ack == nil:
		c.opt.Log.Errorf("mirror: unexpected PUBACK id=%d", id)
	case ack.id != id:
		// single publish in flight, PUBACK for other id is broker error
		_ = bc.die(errors.Errorf("PUBACK id=%d expected=%d", id, ack.id))
	default:
		close(ack.done)
	}
}

func (c *Client) worker() {
	defer c.alive.Done()
	stopch := c.alive.StopChan()
	for {
		bc := c.brokerConn(true)
		if bc == nil {
			return
		}
		select {
		case <-bc.alive.WaitChan():

		case <-stopch:
			_ = bc.die(ErrClientClosing)
			return
		}

		c.opt.Log.Debugf("mirror: reconnect in %v err=%v", c.opt.ReconnectDelay, bc.Err())
		if helpers.Sleep(context.Background(), c.alive, c.opt.ReconnectDelay, ErrClientClosing) != nil {
			return
		}
	}
}

// brokerConn is one transport connection: CONNECT, then pinger and reader until die.
type brokerConn struct {
	alive    *alive.Alive
	conn     atomic.Value // transport.Conn
	err      helpers.AtomicError
	onPuback func(*brokerConn, packet.ID)
	opt      ClientOptions
	ready    chan struct{} // closed on CONNACK
	sentAt   *atomic_clock.Clock
	recvAt   *atomic_clock.Clock
}

func newBrokerConn(opt ClientOptions, onPuback func(*brokerConn, packet.ID)) *brokerConn {
	bc := &brokerConn{
		alive:    alive.NewAlive(),
		onPuback: onPuback,
		opt:      opt,
		ready:    make(chan struct{}),
		sentAt:   atomic_clock.New(0),
		recvAt:   atomic_clock.New(0),
	}
	bc.alive.Add(1)
	go bc.connect()
	return bc
}

func (bc *brokerConn) Err() error {
	e, _ := bc.err.Load()
	return e
}

// die stores first error, stops goroutines and closes transport. Returns e.
func (bc *brokerConn) die(e error) error {
	if e == nil {
		e = ErrClientClosing
	}
	if _, set := bc.err.StoreOnce(e); set {
		return e
	}
	bc.alive.Stop()
	if conn := bc.getConn(); conn != nil {
		_ = conn.Close()
	}
	return e
}

func (bc *brokerConn) getConn() transport.Conn {
	if x := bc.conn.Load(); x != nil {
		return x.(transport.Conn)
	}
	return nil
}

func (bc *brokerConn) connect() {
	defer bc.alive.Done()

	conn, err := bc.opt.dialer.Dial(bc.opt.BrokerURL)
	if err != nil {
		err = errors.Annotatef(err, "dial broker=%s", bc.opt.BrokerURL)
		bc.opt.Log.Debugf("mirror: %v", err)
		_ = bc.die(err)
		return
	}
	bc.conn.Store(conn)
	if !bc.alive.IsRunning() {
		_ = conn.Close()
		return
	}
	if err = bc.send(bc.opt.conpkt); err != nil {
		return
	}

	conn.SetReadTimeout(bc.opt.NetworkTimeout)
	pkt, err := conn.Receive()
	if err != nil {
		_ = bc.die(errors.Annotate(err, "expect CONNACK"))
		return
	}
	connack, ok := pkt.(*packet.Connack)
	if !ok {
		_ = bc.die(errors.Annotatef(client.ErrClientExpectedConnack, "pkt=%s", PacketString(pkt)))
		return
	}
	if connack.ReturnCode != packet.ConnectionAccepted {
		err = errors.Annotate(client.ErrClientConnectionDenied, connack.ReturnCode.String())
		bc.opt.Log.Errorf("mirror: %v", err)
		_ = bc.die(err)
		return
	}
	conn.SetReadTimeout(0)
	bc.opt.Log.Debugf("mirror: connected broker=%s", bc.opt.BrokerURL)

	if !bc.alive.Add(2) {
		return
	}
	bc.recvAt.SetNow()
	close(bc.ready)
	go bc.pinger()
	go bc.reader()
}

// pinger sends PINGREQ when nothing was sent for half of keepalive,
// and drops connection when broker was silent longer than 1.5 keepalive.
func (bc *brokerConn) pinger() {
	defer bc.alive.Done()
	if bc.opt.KeepaliveSec == 0 {
		return
	}
	interval := time.Duration(bc.opt.KeepaliveSec) * time.Second / 2
	silence := keepaliveAndHalf(bc.opt.KeepaliveSec)
	ticker := time.NewTicker(interval / 4)
	defer ticker.Stop()
	stopch := bc.alive.StopChan()
	for {
		select {
		case <-ticker.C:
		case <-stopch:
			return
		}
		now := atomic_clock.Now()
		if now.Sub(bc.recvAt) > silence {
			_ = bc.die(client.ErrClientMissingPong)
			return
		}
		if now.Sub(bc.sentAt) >= interval {
			if err := bc.send(packet.NewPingreq()); err != nil {
				return
			}
		}
	}
}

func (bc *brokerConn) reader() {
	defer bc.alive.Done()

	conn := bc.getConn()
	for {
		pkt, err := conn.Receive()
		if !bc.alive.IsRunning() {
			return
		}
		switch err {
		case nil:
		case io.EOF:
			bc.opt.Log.Errorf("mirror: broker closed connection")
			_ = bc.die(nil)
			return
		default:
			_ = bc.die(errors.Annotate(err, "receive"))
			return
		}
		bc.recvAt.SetNow()
		bc.opt.Log.Debugf("mirror: received=%s", PacketString(pkt))

		switch pt := pkt.(type) {
		case *packet.Pingresp:
		case *packet.Puback:
			bc.onPuback(bc, pt.ID)
		default:
			_ = bc.die(errors.Errorf("unexpected packet %s", PacketString(pkt)))
			return
		}
	}
}

func (bc *brokerConn) send(p packet.Generic) error {
	conn := bc.getConn()
	if conn == nil {
		return client.ErrClientNotConnected
	}
	if err := conn.Send(p, false); err != nil {
		return bc.die(errors.Annotatef(err, "send %s", p.Type().String()))
	}
	bc.sentAt.SetNow()
	bc.opt.Log.Debugf("mirror: sent %s", PacketString(p))
	return nil
}
