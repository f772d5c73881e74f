package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateSubscribed
	StateAuthorized
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateAuthorized:
		return "authorized"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// sessionDeps are the long-lived collaborators a Session feeds. They
// outlive any single connection.
type sessionDeps struct {
	cfg    Config
	jobs   *JobManager
	diff   *DifficultyManager
	shares *SharePipeline
	events *EventHub
	dial   dialFunc
}

// Session is one connection to one endpoint: handshake, receive loop and
// a single serialized writer. A Session is never reused; reconnecting
// builds a new one.
type Session struct {
	endpoint  Endpoint
	name      string
	worker    string
	password  string
	deps      sessionDeps
	validator *securityValidator

	conn   net.Conn
	reader *frameReader
	writer *bufio.Writer

	ids      atomic.Uint64
	outbound chan []byte

	callsMu sync.Mutex
	calls   map[uint64]chan inboundMessage

	stateMu       sync.Mutex
	state         ConnectionState
	err           error
	reconnectWait time.Duration
	connectedAt   time.Time
	rtt           time.Duration

	unknownMu      sync.Mutex
	unknownMethods map[string]uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newSession(ep Endpoint, deps sessionDeps) *Session {
	if deps.dial == nil {
		deps.dial = newDialFunc(deps.cfg)
	}
	return &Session{
		endpoint:  ep,
		name:      ep.String(),
		worker:    deps.cfg.WorkerIdentity(),
		password:  deps.cfg.WorkerPassword,
		deps:      deps,
		validator: newSecurityValidator(deps.cfg),
		outbound:  make(chan []byte, outboundQueueDepth),
		calls:     make(map[uint64]chan inboundMessage),
		done:      make(chan struct{}),
	}
}

func (s *Session) State() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// setState only moves forward through the handshake and never revives a
// session that has shut down.
func (s *Session) setState(next ConnectionState) bool {
	s.stateMu.Lock()
	if s.err != nil || next <= s.state {
		s.stateMu.Unlock()
		return false
	}
	s.state = next
	s.stateMu.Unlock()
	s.deps.events.Publish(Event{Kind: EventConnectionState, Endpoint: s.name, State: next})
	return true
}

// Done is closed once the session has failed or been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended. Nil while it is alive.
func (s *Session) Err() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.err
}

// ReconnectWait is the delay a pool asked for with client.reconnect.
func (s *Session) ReconnectWait() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.reconnectWait
}

// ConnectLatency is the kernel RTT when known, otherwise the time taken to
// dial.
func (s *Session) ConnectLatency() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.rtt
}

// Establish runs connect, subscribe and authorize within the handshake
// timeout. On error the session is already shut down.
func (s *Session) Establish(ctx context.Context) error {
	timeout := s.deps.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Connect(hctx); err != nil {
		return err
	}
	if err := s.Subscribe(hctx); err != nil {
		s.fail(err)
		return err
	}
	if err := s.Authorize(hctx); err != nil {
		s.fail(err)
		return err
	}
	if s.deps.cfg.ExtranonceSubscribe {
		if err := s.notify(methodExtranonceSubscribe, []any{}); err != nil {
			logger.Warn("extranonce subscribe failed", "endpoint", s.name, "error", err)
		}
	}
	return nil
}

func (s *Session) Connect(ctx context.Context) error {
	if !s.setState(StateConnecting) {
		return &ProtocolError{Op: "connect", Err: errSessionClosed}
	}
	start := time.Now()
	conn, err := dialEndpoint(ctx, s.deps.dial, s.endpoint, s.deps.cfg.ConnectTimeout)
	if err != nil {
		s.fail(err)
		return err
	}
	rtt := kernelRTT(conn)
	if rtt <= 0 {
		rtt = time.Since(start)
	}

	s.stateMu.Lock()
	if s.err != nil {
		closedBy := s.err
		s.stateMu.Unlock()
		_ = conn.Close()
		return closedBy
	}
	s.conn = conn
	s.connectedAt = time.Now()
	s.rtt = rtt
	s.stateMu.Unlock()

	maxFrame := s.deps.cfg.MaxFrameBytes
	if maxFrame <= 0 {
		maxFrame = maxStratumMessageSize
	}
	s.reader = newFrameReader(conn, maxFrame)
	s.writer = bufio.NewWriter(conn)

	s.wg.Add(2)
	go s.writeLoop()
	go s.receiveLoop()
	logger.Info("connected", "endpoint", s.name, "rtt", rtt.Round(time.Millisecond))
	return nil
}

// Subscribe stores extranonce1 and extranonce2_size from the pool's reply.
func (s *Session) Subscribe(ctx context.Context) error {
	reply, err := s.call(ctx, methodSubscribe, []any{clientSoftwareName + "/" + clientVersion})
	if err != nil {
		return &ProtocolError{Op: methodSubscribe, Err: err}
	}
	if reply.rpcErr != nil {
		return &ProtocolError{Op: methodSubscribe, Err: errors.New(reply.rpcErr.String())}
	}
	result, ok := reply.result.([]any)
	if !ok || len(result) < 3 {
		return &ProtocolError{Op: methodSubscribe, Err: fmt.Errorf("unexpected result shape %T", reply.result)}
	}
	en1, size, err := parseExtranonceParams(result[1:])
	if err != nil {
		return &ProtocolError{Op: methodSubscribe, Err: err}
	}
	s.deps.jobs.SetExtranonce(en1, size)
	s.setState(StateSubscribed)
	logger.Info("subscribed", "endpoint", s.name, "extranonce1_bytes", len(en1), "extranonce2_size", size)
	return nil
}

// Authorize sends the merged-mining worker identity. A refusal is an
// AuthError and the session goes no further.
func (s *Session) Authorize(ctx context.Context) error {
	reply, err := s.call(ctx, methodAuthorize, []any{s.worker, s.password})
	if err != nil {
		return &ProtocolError{Op: methodAuthorize, Err: err}
	}
	if reply.rpcErr != nil {
		return &AuthError{Worker: s.worker, Reason: reply.rpcErr.String()}
	}
	if ok, _ := reply.result.(bool); !ok {
		return &AuthError{Worker: s.worker}
	}
	s.setState(StateAuthorized)
	s.deps.shares.attach(s)
	logger.Info("authorized", "endpoint", s.name, "worker", s.worker)
	return nil
}

// Close shuts the session down at the owner's request.
func (s *Session) Close() {
	s.shutdown(errSessionClosed, StateDisconnected)
	s.wg.Wait()
}

func (s *Session) fail(err error) {
	s.shutdown(err, StateFailed)
}

// shutdown closes the transport, unblocks both loops, and fails every
// outstanding submission. Only the first call has any effect.
func (s *Session) shutdown(err error, state ConnectionState) {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		s.err = err
		s.state = state
		conn := s.conn
		s.stateMu.Unlock()

		close(s.done)
		if conn != nil {
			_ = conn.Close()
		}
		s.deps.shares.detach(s, errSessionClosed.Error())
		s.deps.events.Publish(Event{Kind: EventConnectionState, Endpoint: s.name, State: state, Reason: errorReason(err)})
		if state == StateFailed {
			logger.Warn("session failed", "endpoint", s.name, "error", err)
		} else {
			logger.Info("session closed", "endpoint", s.name)
		}
	})
}

func errorReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// shareTransport

func (s *Session) endpointName() string { return s.name }

// FrameCounters reports malformed frames and unknown-method notifications
// seen over the life of the session.
func (s *Session) FrameCounters() (malformed, unknown uint64) {
	s.unknownMu.Lock()
	for _, n := range s.unknownMethods {
		unknown += n
	}
	s.unknownMu.Unlock()
	return s.validator.malformed.totalSeen(), unknown
}

// noteUnknownMethod counts an unrecognized method and logs the first
// occurrence and then every unknownMethodLogEvery-th.
func (s *Session) noteUnknownMethod(method string) {
	s.unknownMu.Lock()
	if s.unknownMethods == nil {
		s.unknownMethods = make(map[string]uint64)
	}
	s.unknownMethods[method]++
	n := s.unknownMethods[method]
	s.unknownMu.Unlock()
	if n == 1 || n%unknownMethodLogEvery == 0 {
		logger.Info("ignoring unknown stratum method", "endpoint", s.name, "method", method, "seen", n)
	}
}

func (s *Session) allocateID() uint64 { return s.ids.Add(1) }

func (s *Session) checkCandidate(c Candidate, extranonce2Size int) error {
	return s.validator.checkCandidate(c, extranonce2Size)
}

func (s *Session) noteSubmitted(id uint64, key shareKey) {
	s.validator.noteSubmitted(id, key)
}
