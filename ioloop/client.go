package ioloop

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/qdevice/client"
	qlog "github.com/luxfi/qdevice/log"
	"github.com/luxfi/qdevice/metrics"
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/timer"
	"github.com/luxfi/qdevice/wire"
)

// ClientConfig carries everything the reactor needs to run one
// connection attempt of qdevice against a single qnetd server.
type ClientConfig struct {
	ServerAddress    string
	DialTimeout      time.Duration
	TLSConfig        *tls.Config // non-nil enables STARTTLS when requested
	MaxMessageLen    int
	ReconnectBackoff time.Duration
	Metrics          *metrics.ClientMetrics
	Log              log.Logger

	// NewClient builds a fresh client.Client for each connection
	// attempt, already wired to cmap/votequorum adaptors by the caller.
	NewClient func(timers *timer.List) *client.Client
}

// ClientLoop drives repeated connection attempts to a single qnetd
// server, reconnecting with backoff whenever the session dies (server
// error, transport error, or a missed-heartbeat timeout). Exactly one
// goroutine per attempt, the dispatch loop below, ever calls into the
// client.Client or its timer.List; the reader goroutine only parses
// frames off the wire and hands them over a channel.
type ClientLoop struct {
	cfg ClientConfig
	log log.Logger
}

// NewClientLoop constructs a reactor for the given configuration.
func NewClientLoop(cfg ClientConfig) *ClientLoop {
	if cfg.Log == nil {
		cfg.Log = qlog.NewNoOpLogger()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	return &ClientLoop{cfg: cfg, log: cfg.Log}
}

// Run dials, runs one session to completion, and reconnects with
// backoff, until ctx is canceled.
func (l *ClientLoop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.runOnce(ctx); err != nil {
			kind := status.KindFor(err)
			l.logByKind(kind, "session ended, reconnecting", err)
			if l.cfg.Metrics != nil {
				l.cfg.Metrics.Reconnects.Inc()
			}
			// A fatal error (e.g. resource exhaustion) will not clear on
			// its own; per spec.md §7 the client exits rather than
			// spinning on reconnect backoff forever.
			if kind == status.KindFatal {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectBackoff):
		}
	}
}

// logByKind logs a session error at the level spec.md §7 assigns its
// status.Kind: transient conditions are expected background noise,
// everything else is surfaced more loudly.
func (l *ClientLoop) logByKind(kind status.Kind, msg string, err error) {
	switch kind {
	case status.KindTransient:
		l.log.Debug(msg, "error", err, "kind", "transient")
	case status.KindProtocol:
		l.log.Warn(msg, "error", err, "kind", "protocol")
	case status.KindConfiguration:
		l.log.Error(msg, "error", err, "kind", "configuration")
	case status.KindFatal:
		l.log.Error(msg, "error", err, "kind", "fatal")
	default:
		l.log.Error(msg, "error", err, "kind", "internal")
	}
}

type clientFrame struct {
	msg *wire.Message
	err error
}

func (l *ClientLoop) runOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: l.cfg.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", l.cfg.ServerAddress)
	if err != nil {
		return err
	}
	defer raw.Close()

	timers := timer.NewList()
	c := l.cfg.NewClient(timers)
	conn := &clientConn{active: raw, raw: raw, advance: make(chan struct{}, 1)}
	frames := make(chan clientFrame, 1)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, _ := errgroup.WithContext(sctx)
	g.Go(func() error {
		return l.readLoop(sctx, conn, frames)
	})

	c.Start()
	if err := l.flush(conn, c); err != nil {
		cancel()
		g.Wait()
		return err
	}

	dispatchErr := l.dispatchLoop(sctx, conn, c, timers, frames)
	cancel()
	_ = conn.active.Close()
	g.Wait()
	return dispatchErr
}

// dispatchLoop is the single goroutine authorized to mutate the
// client.Client and timer.List for this connection attempt.
func (l *ClientLoop) dispatchLoop(ctx context.Context, conn *clientConn, c *client.Client, timers *timer.List, frames <-chan clientFrame) error {
	t := time.NewTimer(time.Hour)
	defer t.Stop()
	armTimer(t, timers)

	for {
		select {
		case <-ctx.Done():
			return nil

		case f, ok := <-frames:
			if !ok {
				return errors.New("ioloop: connection closed")
			}
			if f.err != nil {
				return f.err
			}
			if err := c.Handle(f.msg); err != nil {
				if errors.Is(err, client.ErrUpgradeRequested) {
					if err := l.upgrade(conn, c); err != nil {
						return err
					}
					armTimer(t, timers)
					releaseReader(conn)
					continue
				}
				return err
			}
			if err := l.flush(conn, c); err != nil {
				return err
			}
			armTimer(t, timers)
			releaseReader(conn)

		case <-t.C:
			timers.FireExpired(time.Now())
			if c.State() == client.StateClosed {
				return errors.New("ioloop: client closed itself (heartbeat timeout)")
			}
			if err := l.flush(conn, c); err != nil {
				return err
			}
			armTimer(t, timers)
		}
	}
}

func releaseReader(conn *clientConn) {
	select {
	case conn.advance <- struct{}{}:
	default:
	}
}

func armTimer(t *time.Timer, timers *timer.List) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	deadline, ok := timers.NextDeadline()
	if !ok {
		t.Reset(time.Hour)
		return
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

type clientConn struct {
	raw    net.Conn
	active net.Conn

	// advance releases the reader goroutine to call ReadFrame again,
	// after the dispatch loop has finished acting on the previous
	// frame (including any STARTTLS upgrade that swaps active). This
	// keeps exactly one Read in flight on the connection at a time.
	advance chan struct{}
}

// readLoop only parses frames off the wire; it never touches client.Client.
func (l *ClientLoop) readLoop(ctx context.Context, conn *clientConn, frames chan<- clientFrame) error {
	for {
		msg, err := wire.ReadFrame(conn.active, l.cfg.MaxMessageLen)
		select {
		case frames <- clientFrame{msg: msg, err: err}:
		case <-ctx.Done():
			return nil
		}
		if err != nil {
			return nil
		}
		select {
		case <-conn.advance:
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *ClientLoop) upgrade(conn *clientConn, c *client.Client) error {
	if l.cfg.TLSConfig == nil {
		return errors.New("ioloop: server required starttls but no TLS config configured")
	}
	tlsConn := tls.Client(conn.raw, l.cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return err
	}
	conn.active = tlsConn
	c.TLSUpgraded()
	return l.flush(conn, c)
}

// flush drains every queued outbound frame onto the wire. The client's
// sendbuf.List already enforces ordering and bounds; this just writes
// until empty.
func (l *ClientLoop) flush(conn *clientConn, c *client.Client) error {
	for {
		head := c.SendQueue.Head()
		if head == nil {
			return nil
		}
		n, err := conn.active.Write(head.Remaining())
		if err != nil {
			return err
		}
		c.SendQueue.Advance(n)
	}
}
