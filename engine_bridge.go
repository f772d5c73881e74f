package main

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

// engineRequest is one request from an out-of-process compute engine over
// the ZeroMQ REP socket.
//
//	{"method":"work","wait_ms":5000}
//	{"method":"submit","candidate":{"job_id":..,"extranonce2":..,"ntime":..,"nonce":..,"epoch":..}}
//	{"method":"stats"}
type engineRequest struct {
	Method    string     `json:"method"`
	WaitMS    int        `json:"wait_ms,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

type engineResponse struct {
	OK     bool         `json:"ok"`
	Error  string       `json:"error,omitempty"`
	Stale  bool         `json:"stale,omitempty"`
	Work   *WorkUnit    `json:"work,omitempty"`
	Stats  *ClientStats `json:"stats,omitempty"`
	Server string       `json:"server,omitempty"`
}

type engineBackend interface {
	WaitWorkUnit(ctx context.Context) (WorkUnit, error)
	Submit(c Candidate) error
	Stats() ClientStats
}

type engineBridge struct {
	addr        string
	backend     engineBackend
	workTimeout time.Duration
}

func newEngineBridge(addr string, backend engineBackend) *engineBridge {
	return &engineBridge{addr: addr, backend: backend, workTimeout: defaultEngineBridgeWorkTimeout}
}

// handle answers one request. It never fails; errors travel in the reply.
func (b *engineBridge) handle(ctx context.Context, raw []byte) []byte {
	var req engineRequest
	var resp engineResponse
	if err := fastJSONUnmarshal(raw, &req); err != nil {
		resp.Error = "invalid request: " + err.Error()
		return b.encode(resp)
	}
	switch req.Method {
	case "work":
		wait := b.workTimeout
		if req.WaitMS > 0 {
			wait = min(time.Duration(req.WaitMS)*time.Millisecond, time.Minute)
		}
		wctx, cancel := context.WithTimeout(ctx, wait)
		wu, err := b.backend.WaitWorkUnit(wctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = errNoWork
			}
			resp.Error = err.Error()
			break
		}
		resp.OK = true
		resp.Work = &wu
	case "submit":
		if req.Candidate == nil {
			resp.Error = "submit needs a candidate"
			break
		}
		if err := b.backend.Submit(*req.Candidate); err != nil {
			var stale *StaleWorkError
			resp.Stale = errors.As(err, &stale)
			resp.Error = err.Error()
			break
		}
		resp.OK = true
	case "stats":
		st := b.backend.Stats()
		resp.OK = true
		resp.Stats = &st
	case "version":
		resp.OK = true
		resp.Server = clientSoftwareName + "/" + clientVersion
	default:
		resp.Error = "unknown method " + req.Method
	}
	return b.encode(resp)
}

func (b *engineBridge) encode(resp engineResponse) []byte {
	out, err := fastJSONMarshal(resp)
	if err != nil {
		logger.Error("engine bridge encode", "error", err)
		return []byte(`{"ok":false,"error":"internal encode error"}`)
	}
	return out
}

// Run serves the REP socket until ctx ends. Socket errors are logged and
// the socket is rebuilt with backoff.
func (b *engineBridge) Run(ctx context.Context) {
	backoff := newReconnectBackoff(time.Second, 30*time.Second)
	for ctx.Err() == nil {
		err := b.serve(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		delay := backoff.next()
		logger.Error("engine bridge failed", "addr", b.addr, "error", err, "retry_in", humanDuration(delay))
		if sleepCtx(ctx, delay) != nil {
			return
		}
	}
}

func (b *engineBridge) serve(ctx context.Context) error {
	sock, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return err
	}
	defer sock.Close()
	_ = sock.SetLinger(0)
	if err := sock.SetRcvtimeo(500 * time.Millisecond); err != nil {
		return err
	}
	if err := sock.Bind(b.addr); err != nil {
		return err
	}
	logger.Info("engine bridge listening", "addr", b.addr)

	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := sock.RecvBytes(0)
		if err != nil {
			eno := zmq4.AsErrno(err)
			if eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT {
				continue
			}
			return err
		}
		if _, err := sock.SendBytes(b.handle(ctx, msg), 0); err != nil {
			return err
		}
	}
}
