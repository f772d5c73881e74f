package main

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// call sends a request and waits for its response on the receive loop.
func (s *Session) call(ctx context.Context, method string, params []any) (inboundMessage, error) {
	id := s.allocateID()
	ch := make(chan inboundMessage, 1)
	s.callsMu.Lock()
	s.calls[id] = ch
	s.callsMu.Unlock()
	defer func() {
		s.callsMu.Lock()
		delete(s.calls, id)
		s.callsMu.Unlock()
	}()

	if err := s.enqueue(id, method, params); err != nil {
		return inboundMessage{}, err
	}
	select {
	case msg := <-ch:
		return msg, nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return inboundMessage{}, err
		}
		return inboundMessage{}, errSessionClosed
	case <-ctx.Done():
		return inboundMessage{}, ctx.Err()
	}
}

// notify sends a request whose reply is read and discarded.
func (s *Session) notify(method string, params []any) error {
	id := s.allocateID()
	s.callsMu.Lock()
	s.calls[id] = make(chan inboundMessage, 1)
	s.callsMu.Unlock()
	if err := s.enqueue(id, method, params); err != nil {
		s.callsMu.Lock()
		delete(s.calls, id)
		s.callsMu.Unlock()
		return err
	}
	return nil
}

// enqueue hands a request to the writer without blocking.
func (s *Session) enqueue(id uint64, method string, params []any) error {
	frame, err := encodeRequest(id, method, params)
	if err != nil {
		return err
	}
	return s.enqueueFrame(frame)
}

func (s *Session) enqueueFrame(frame []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.outbound <- frame:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return errSubmitQueueFull
	}
}

func (s *Session) reply(id any, result any) {
	frame, err := encodeReply(id, result)
	if err != nil {
		logger.Error("encode reply", "endpoint", s.name, "error", err)
		return
	}
	if err := s.enqueueFrame(frame); err != nil && debugLogging {
		logger.Debug("reply dropped", "endpoint", s.name, "error", err)
	}
}

// writeLoop is the only writer to the transport, so frames leave in the
// order they were queued.
func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(stratumWriteTimeout)); err != nil {
				s.fail(&ConnectError{Endpoint: s.name, Err: err})
				return
			}
			logNetMessage("send", s.name, frame)
			if _, err := s.writer.Write(frame); err != nil {
				s.fail(&ConnectError{Endpoint: s.name, Err: err})
				return
			}
			if len(s.outbound) > 0 {
				continue
			}
			if err := s.writer.Flush(); err != nil {
				s.fail(&ConnectError{Endpoint: s.name, Err: err})
				return
			}
		}
	}
}

func (s *Session) idleTimeout() time.Duration {
	if s.deps.cfg.IdleTimeout > 0 {
		return s.deps.cfg.IdleTimeout
	}
	return defaultIdleTimeout
}

// receiveLoop reads, validates and dispatches frames in arrival order.
// Silence longer than the idle timeout fails the session since the
// protocol has no mandatory keepalive.
func (s *Session) receiveLoop() {
	defer s.wg.Done()
	idle := s.idleTimeout()
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			s.fail(&ConnectError{Endpoint: s.name, Err: err})
			return
		}
		frame, err := s.reader.readFrame()
		if err != nil {
			if errors.Is(err, errFrameTooLarge) {
				logger.Warn("oversized frame dropped", "endpoint", s.name, "limit_bytes", s.reader.max)
				if s.validator.noteMalformed() {
					s.fail(&ProtocolError{Op: "receive", Err: errMalformedRate})
					return
				}
				continue
			}
			s.readFailed(err)
			return
		}
		logNetMessage("recv", s.name, frame)

		msg, err := s.validator.validate(frame)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) && ve.Malformed {
				logger.Warn("malformed frame dropped", "endpoint", s.name, "error", err)
				if s.validator.noteMalformed() {
					s.fail(&ProtocolError{Op: "receive", Err: errMalformedRate})
					return
				}
			} else if debugLogging {
				logger.Debug("frame dropped", "endpoint", s.name, "error", err)
			}
			continue
		}
		if !s.dispatch(msg) {
			return
		}
	}
}

func (s *Session) readFailed(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	switch {
	case isTimeout(err):
		s.fail(errIdleTimeout)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		s.fail(&ConnectError{Endpoint: s.name, Err: errors.New("connection closed by pool")})
	default:
		s.fail(&ConnectError{Endpoint: s.name, Err: err})
	}
}

// dispatch routes one validated frame. It returns false when the session
// has ended.
func (s *Session) dispatch(msg inboundMessage) bool {
	switch msg.kind {
	case inboundResponse:
		s.callsMu.Lock()
		ch, waiting := s.calls[msg.responseID]
		if waiting {
			delete(s.calls, msg.responseID)
		}
		s.callsMu.Unlock()
		if waiting {
			ch <- msg
			return true
		}
		proposal, ok := s.deps.shares.OnResponse(msg.responseID, msg.result, msg.rpcErr)
		if ok && proposal.Applied {
			if err := s.notify(methodSuggestDifficulty, []any{proposal.To}); err != nil {
				logger.Warn("suggest difficulty failed", "endpoint", s.name, "error", err)
			}
		}

	case inboundNotify:
		s.deps.jobs.OnNotify(msg.job)
		s.deps.events.Publish(Event{Kind: EventJobChanged, Endpoint: s.name, JobID: msg.job.JobID, CleanJobs: msg.job.CleanJobs})
		if debugLogging {
			logger.Debug("job", "endpoint", s.name, "job_id", msg.job.JobID, "clean", msg.job.CleanJobs)
		}

	case inboundSetDifficulty:
		s.deps.diff.OnSetDifficulty(msg.difficulty)
		s.deps.events.Publish(Event{Kind: EventDifficultyChanged, Endpoint: s.name, Difficulty: msg.difficulty})
		logger.Info("pool difficulty", "endpoint", s.name, "difficulty", msg.difficulty)

	case inboundSetExtranonce:
		s.deps.jobs.SetExtranonce(msg.extranonce1, msg.extranonce2Size)
		logger.Info("extranonce reassigned", "endpoint", s.name, "extranonce2_size", msg.extranonce2Size)

	case inboundReconnect:
		if msg.reconnect.Host != "" && msg.reconnect.Host != s.endpoint.Host {
			logger.Warn("ignoring reconnect to a different host", "endpoint", s.name, "host", msg.reconnect.Host)
			return true
		}
		s.stateMu.Lock()
		s.reconnectWait = msg.reconnect.Wait
		s.stateMu.Unlock()
		logger.Info("pool requested reconnect", "endpoint", s.name, "wait", msg.reconnect.Wait)
		s.fail(errServerReconnect)
		return false

	case inboundGetVersion:
		s.reply(msg.requestID, clientSoftwareName+"/"+clientVersion)

	case inboundShowMessage:
		logger.Info("pool message", "endpoint", s.name, "message", msg.message)

	case inboundPing:
		s.reply(msg.requestID, "pong")

	default:
		s.noteUnknownMethod(msg.method)
	}
	return true
}
