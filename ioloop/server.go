// Package ioloop implements the single serializing reactor that drives
// qnetd sessions and the qdevice client state machine, per SPEC_FULL.md
// §8. Each accepted connection gets its own reader goroutine; every
// goroutine funnels decoded frames into one channel so that exactly one
// goroutine (the dispatch loop) ever touches a Session, a Client, or
// the cluster.Registry. This replaces the corosync-derived reference
// implementation's single-threaded epoll loop with the idiomatic Go
// equivalent: goroutine-per-connection fan-in, not raw readiness
// polling.
package ioloop

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/qdevice/cluster"
	qlog "github.com/luxfi/qdevice/log"
	"github.com/luxfi/qdevice/metrics"
	"github.com/luxfi/qdevice/server"
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

type serverEvent struct {
	connID uint64
	msg    *wire.Message
	err    error
}

type serverConn struct {
	id     uint64
	raw    net.Conn
	active net.Conn // raw, or the upgraded *tls.Conn once STARTTLS completes
	sess   *server.Session

	// advance releases the reader goroutine to call ReadFrame again.
	// The reader blocks on it after every frame so that a STARTTLS
	// upgrade (which swaps active and must own the only Read call in
	// flight) always happens strictly between two reads, never
	// concurrently with one.
	advance chan struct{}
}

// ServerConfig carries everything the reactor needs to run qnetd.
type ServerConfig struct {
	Listener      net.Listener
	Registry      *cluster.Registry
	TLSConfig     *tls.Config // used only to perform the in-band STARTTLS upgrade
	RequireTLS    bool
	MaxMessageLen int
	Metrics       *metrics.ServerMetrics
	Log           log.Logger
}

// Server is the qnetd connection reactor. conns is owned exclusively by
// the dispatchLoop goroutine and nextID only by acceptLoop; reader
// goroutines touch neither, only the shared events channel.
type Server struct {
	cfg    ServerConfig
	log    log.Logger
	events chan serverEvent

	conns  map[uint64]*serverConn
	nextID uint64
}

// NewServer constructs a reactor bound to an already-listening socket.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = qlog.NewNoOpLogger()
	}
	return &Server{
		cfg:    cfg,
		log:    cfg.Log,
		events: make(chan serverEvent, 256),
		conns:  make(map[uint64]*serverConn),
	}
}

// Run accepts connections and dispatches frames until ctx is canceled
// or the listener fails. It returns the first fatal error encountered.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return s.cfg.Listener.Close()
	})

	g.Go(func() error {
		return s.acceptLoop(ctx)
	})

	g.Go(func() error {
		return s.dispatchLoop(ctx)
	})

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		raw, err := s.cfg.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.nextID++
		id := s.nextID
		c := &serverConn{id: id, raw: raw, active: raw, advance: make(chan struct{}, 1)}
		c.sess = server.NewSession(id, raw.RemoteAddr().String(), s.cfg.Registry, tlsModeOf(s.cfg.TLSConfig, s.cfg.RequireTLS), s.cfg.RequireTLS, s.log)

		s.events <- serverEvent{connID: id, msg: nil, err: errNewConn{c: c}}
	}
}

// errNewConn smuggles a freshly accepted connection through the event
// channel so conn registration happens only on the dispatch goroutine.
type errNewConn struct{ c *serverConn }

func (errNewConn) Error() string { return "new connection" }

func tlsModeOf(cfg *tls.Config, require bool) wire.TLSMode {
	switch {
	case require:
		return wire.TLSRequired
	case cfg != nil:
		return wire.TLSSupported
	default:
		return wire.TLSUnsupported
	}
}

func (s *Server) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			var nc errNewConn
			if errors.As(ev.err, &nc) {
				s.registerConn(ctx, nc.c)
				continue
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Server) registerConn(ctx context.Context, c *serverConn) {
	s.conns[c.id] = c
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Sessions.Add(1)
	}
	go s.readLoop(ctx, c)
}

func (s *Server) readLoop(ctx context.Context, c *serverConn) {
	for {
		msg, err := wire.ReadFrame(c.active, s.cfg.MaxMessageLen)
		select {
		case s.events <- serverEvent{connID: c.id, msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
		// Wait for the dispatch loop to finish acting on this frame
		// (including any STARTTLS upgrade of c.active) before reading
		// the next one off the wire.
		select {
		case <-c.advance:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleEvent(ev serverEvent) {
	c, ok := s.conns[ev.connID]
	if !ok {
		return
	}
	if ev.err != nil {
		s.closeConn(c, ev.err)
		return
	}
	defer s.release(c)

	reply, err := c.sess.Handle(ev.msg)
	if reply != nil {
		s.writeReply(c, reply)
	}
	// An algorithm's SendVoteInfo call (FFSPLIT/2NODELMS tie resolution,
	// server/session.go's SendVoteInfo) can enqueue onto a session other
	// than the one that triggered this dispatch pass, so every live
	// connection's send-buffer list needs draining here, not just c's.
	s.flushAll()
	if err == nil {
		return
	}
	if errors.Is(err, server.ErrUpgradeRequested) {
		s.upgradeConn(c)
		return
	}
	if errors.Is(err, server.ErrProtocolViolation) {
		s.closeConn(c, err)
	}
}

// flushAll drains every live connection's session send-buffer list onto
// its socket, mirroring ioloop/client.go's flush for the client side.
func (s *Server) flushAll() {
	for _, c := range s.conns {
		for {
			head := c.sess.SendQueue.Head()
			if head == nil {
				break
			}
			n, err := c.active.Write(head.Remaining())
			if err != nil {
				s.closeConn(c, err)
				break
			}
			c.sess.SendQueue.Advance(n)
		}
	}
}

// release unblocks c's reader goroutine to read the next frame. Safe
// to call on an already-closed connection: the reader has exited and
// nothing receives from advance, but the send is best-effort and the
// channel is never closed so it cannot panic.
func (s *Server) release(c *serverConn) {
	select {
	case c.advance <- struct{}{}:
	default:
	}
}

func (s *Server) writeReply(c *serverConn, msg *wire.Message) {
	buf, err := wire.Encode(msg)
	if err != nil {
		s.log.Error("failed to encode reply", "error", err)
		return
	}
	if _, err := c.active.Write(buf); err != nil {
		s.closeConn(c, err)
	}
}

func (s *Server) upgradeConn(c *serverConn) {
	if s.cfg.TLSConfig == nil {
		s.closeConn(c, errors.New("ioloop: starttls requested but no TLS config configured"))
		return
	}
	tlsConn := tls.Server(c.raw, s.cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TLSHandshakeErr.Inc()
		}
		s.closeConn(c, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.TLSHandshakeOK.Inc()
	}
	c.active = tlsConn
}

func (s *Server) closeConn(c *serverConn, cause error) {
	if cause != nil && !errors.Is(cause, io.EOF) {
		s.logCloseByKind(c, cause)
	}
	c.sess.Close(false)
	_ = c.active.Close()
	delete(s.conns, c.id)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Sessions.Add(-1)
	}
}

// logCloseByKind logs a connection teardown at the level spec.md §7
// assigns the cause's status.Kind: a transient read/write error off an
// otherwise-idle socket is routine, while protocol and configuration
// failures indicate a misbehaving or misconfigured peer worth a
// louder log line.
func (s *Server) logCloseByKind(c *serverConn, cause error) {
	addr := c.raw.RemoteAddr().String()
	switch status.KindFor(cause) {
	case status.KindTransient:
		s.log.Debug("closing connection", "remote_addr", addr, "error", cause, "kind", "transient")
	case status.KindProtocol:
		s.log.Warn("closing connection", "remote_addr", addr, "error", cause, "kind", "protocol")
	case status.KindConfiguration:
		s.log.Error("closing connection", "remote_addr", addr, "error", cause, "kind", "configuration")
	case status.KindFatal:
		s.log.Error("closing connection", "remote_addr", addr, "error", cause, "kind", "fatal")
	default:
		s.log.Warn("closing connection", "remote_addr", addr, "error", cause, "kind", "internal")
	}
}

// Shutdown closes every live connection, telling each session the
// server is going down rather than that the peer disconnected.
func (s *Server) Shutdown() {
	for _, c := range s.conns {
		c.sess.Close(true)
		_ = c.active.Close()
	}
}
