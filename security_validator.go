package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// securityValidator sits between the codec and dispatch. Nothing reaches
// the job, difficulty or share components without passing through here.
// One validator lives for one session.
type securityValidator struct {
	maxFrameBytes int
	malformed     *malformedFrameTracker
	submitted     *lru.Cache[uint64, shareKey]
	acked         *shareKeySet
	notifies      *lru.Cache[[32]byte, struct{}]
	now           func() time.Time
}

func newSecurityValidator(cfg Config) *securityValidator {
	size := cfg.ReplayCacheSize
	if size <= 0 {
		size = defaultReplayCacheSize
	}
	submitted, _ := lru.New[uint64, shareKey](size)
	notifies, _ := lru.New[[32]byte, struct{}](max(cfg.JobRetention*8, 64))
	maxFrame := cfg.MaxFrameBytes
	if maxFrame <= 0 {
		maxFrame = maxStratumMessageSize
	}
	return &securityValidator{
		maxFrameBytes: maxFrame,
		malformed:     newMalformedFrameTracker(cfg.MalformedFrameLimit, cfg.MalformedFrameWindow),
		submitted:     submitted,
		acked:         newShareKeySet(size),
		notifies:      notifies,
		now:           time.Now,
	}
}

// noteMalformed counts a malformed frame; true means the session should
// be failed.
func (v *securityValidator) noteMalformed() bool {
	return v.malformed.note(v.now())
}

// noteSubmitted ties an outbound submit id to its share so a second
// acknowledgement for the same share can be spotted.
func (v *securityValidator) noteSubmitted(id uint64, key shareKey) {
	v.submitted.Add(id, key)
}

func (v *securityValidator) validate(frame []byte) (inboundMessage, error) {
	if len(frame) > v.maxFrameBytes {
		return inboundMessage{}, &ValidationError{Reason: "frame exceeds size limit", Malformed: true, Err: errFrameTooLarge}
	}
	if method, ok := sniffMethod(frame); ok && method != "" {
		if _, allowed := inboundMethods[method]; !allowed {
			return inboundMessage{kind: inboundUnrecognized, method: method}, nil
		}
	}
	raw, err := decodeFrame(frame)
	if err != nil {
		return inboundMessage{}, err
	}
	if raw.Method == "" {
		return v.validateResponse(raw)
	}
	kind, ok := inboundMethods[raw.Method]
	if !ok {
		return inboundMessage{kind: inboundUnrecognized, method: raw.Method}, nil
	}
	msg := inboundMessage{kind: kind, method: raw.Method, requestID: raw.ID}

	switch kind {
	case inboundNotify:
		job, err := parseNotifyJob(raw.Params, v.now())
		if err != nil {
			return msg, &ValidationError{Method: raw.Method, Reason: err.Error(), Malformed: true, Err: err}
		}
		fp := notifyFingerprint(job)
		if found, _ := v.notifies.ContainsOrAdd(fp, struct{}{}); found {
			return msg, &ValidationError{Method: raw.Method, Reason: "duplicate of job " + job.JobID, Err: errDuplicateNotify}
		}
		msg.job = job

	case inboundSetDifficulty:
		if len(raw.Params) < 1 {
			return msg, malformed(raw.Method, "missing difficulty")
		}
		d, ok := jsonFloat(raw.Params[0])
		if !ok || d <= 0 || d > maxPoolDifficulty {
			return msg, malformed(raw.Method, "difficulty %v out of range", raw.Params[0])
		}
		msg.difficulty = d

	case inboundSetExtranonce:
		en1, size, err := parseExtranonceParams(raw.Params)
		if err != nil {
			return msg, malformed(raw.Method, "%v", err)
		}
		msg.extranonce1, msg.extranonce2Size = en1, size

	case inboundReconnect:
		req, err := parseReconnectParams(raw.Params)
		if err != nil {
			return msg, malformed(raw.Method, "%v", err)
		}
		msg.reconnect = req

	case inboundShowMessage:
		if len(raw.Params) < 1 {
			return msg, malformed(raw.Method, "missing message")
		}
		text, ok := raw.Params[0].(string)
		if !ok {
			return msg, malformed(raw.Method, "message must be a string")
		}
		msg.message = sanitizeServerText(text)

	case inboundGetVersion, inboundPing:
		// Replies only; no params worth checking.
	}
	return msg, nil
}

func (v *securityValidator) validateResponse(raw rawStratumMessage) (inboundMessage, error) {
	if raw.ID == nil {
		return inboundMessage{}, malformed("", "frame has neither method nor id")
	}
	id, ok := jsonUint(raw.ID)
	if !ok {
		return inboundMessage{}, malformed("response", "id %v is not a non-negative integer", raw.ID)
	}
	rpcErr, err := parseStratumError(raw.Error)
	if err != nil {
		return inboundMessage{}, malformed("response", "%v", err)
	}
	if key, ok := v.submitted.Peek(id); ok {
		if v.acked.seenOrAdd(key) {
			return inboundMessage{}, &ValidationError{Method: "response", Reason: fmt.Sprintf("acknowledgement for id %d already seen", id), Err: errReplayedAck}
		}
	}
	return inboundMessage{kind: inboundResponse, responseID: id, result: raw.Result, rpcErr: rpcErr}, nil
}

// checkCandidate validates outbound submit fields against the negotiated
// extranonce2 size before they are put on the wire.
func (v *securityValidator) checkCandidate(c Candidate, extranonce2Size int) error {
	switch {
	case c.JobID == "" || len(c.JobID) > maxJobIDLen || !isPrintableASCII(c.JobID):
		return &ValidationError{Method: methodSubmit, Reason: "job_id must be 1-128 printable bytes"}
	case extranonce2Size < minExtranonce2Size:
		return &ValidationError{Method: methodSubmit, Reason: "extranonce2 size not negotiated", Err: errExtranonceMissing}
	case !isFixedHex(c.Extranonce2, extranonce2Size*2):
		return &ValidationError{Method: methodSubmit, Reason: fmt.Sprintf("extranonce2 must be %d hex characters", extranonce2Size*2)}
	case !isFixedHex(c.NTime, 8):
		return &ValidationError{Method: methodSubmit, Reason: "ntime must be 8 hex characters"}
	case !isFixedHex(c.Nonce, 8):
		return &ValidationError{Method: methodSubmit, Reason: "nonce must be 8 hex characters"}
	}
	return nil
}

func notifyFingerprint(job *Job) [32]byte {
	var b strings.Builder
	for _, s := range []string{job.JobID, job.PrevHash, job.Coinb1, job.Coinb2, job.Version, job.NBits, job.NTime} {
		b.WriteString(s)
		b.WriteByte('|')
	}
	for _, s := range job.MerkleBranches {
		b.WriteString(s)
		b.WriteByte(',')
	}
	b.WriteString(strconv.FormatBool(job.CleanJobs))
	return sha256Sum([]byte(b.String()))
}

// parseExtranonceParams accepts [extranonce1_hex, extranonce2_size] as sent
// by both mining.subscribe results (offset by one) and mining.set_extranonce.
func parseExtranonceParams(params []any) ([]byte, int, error) {
	if len(params) < 2 {
		return nil, 0, fmt.Errorf("expected extranonce1 and extranonce2_size")
	}
	s, ok := params[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("extranonce1 must be a hex string")
	}
	en1, err := decodeHexBounded(s, maxExtranonce1Bytes)
	if err != nil {
		return nil, 0, fmt.Errorf("extranonce1: %w", err)
	}
	size, ok := jsonInt(params[1])
	if !ok || size < minExtranonce2Size || size > maxExtranonce2Size {
		return nil, 0, fmt.Errorf("extranonce2_size %v must be %d-%d", params[1], minExtranonce2Size, maxExtranonce2Size)
	}
	return en1, size, nil
}

func parseReconnectParams(params []any) (reconnectRequest, error) {
	var req reconnectRequest
	if len(params) > 0 && params[0] != nil {
		host, ok := params[0].(string)
		if !ok || len(host) > 255 || strings.ContainsAny(host, " /") {
			return req, fmt.Errorf("invalid host")
		}
		req.Host = host
	}
	if len(params) > 1 && params[1] != nil {
		port, ok := jsonInt(params[1])
		if !ok || port < 0 || port > 65535 {
			return req, fmt.Errorf("invalid port %v", params[1])
		}
		req.Port = port
	}
	if len(params) > 2 && params[2] != nil {
		wait, ok := jsonInt(params[2])
		if !ok || wait < 0 {
			return req, fmt.Errorf("invalid wait %v", params[2])
		}
		req.Wait = min(time.Duration(wait)*time.Second, maxReconnectWait)
	}
	return req, nil
}

func parseStratumError(v any) (*stratumError, error) {
	switch e := v.(type) {
	case nil:
		return nil, nil
	case []any:
		if len(e) == 0 {
			return nil, fmt.Errorf("empty error array")
		}
		se := &stratumError{}
		code, ok := jsonInt(e[0])
		if !ok {
			return nil, fmt.Errorf("error code %v is not an integer", e[0])
		}
		se.Code = code
		if len(e) > 1 {
			se.Message = sanitizeServerText(fmt.Sprint(e[1]))
		}
		return se, nil
	case map[string]any:
		se := &stratumError{}
		if c, ok := jsonInt(e["code"]); ok {
			se.Code = c
		}
		if m, ok := e["message"].(string); ok {
			se.Message = sanitizeServerText(m)
		}
		return se, nil
	case string:
		return &stratumError{Message: sanitizeServerText(e)}, nil
	default:
		return nil, fmt.Errorf("unsupported error shape %T", v)
	}
}

// sanitizeServerText keeps pool-supplied text safe to log: printable ASCII
// only and bounded length.
func sanitizeServerText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < maxShowMessageLen; i++ {
		c := s[i]
		if c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		}
	}
	return b.String()
}
