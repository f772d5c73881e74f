package main

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func notifyFrame(t *testing.T, jobID string, clean bool) []byte {
	t.Helper()
	b, err := fastJSONMarshal(map[string]any{
		"id":     nil,
		"method": methodNotify,
		"params": testNotifyParams(jobID, clean),
	})
	if err != nil {
		t.Fatalf("marshal notify: %v", err)
	}
	return b
}

func TestValidatorRejectsOversizedFrame(t *testing.T) {
	v := newSecurityValidator(Config{MaxFrameBytes: 32})
	_, err := v.validate([]byte(`{"id":1,"result":"` + strings.Repeat("x", 64) + `"}`))
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Malformed {
		t.Fatalf("expected malformed ValidationError, got %v", err)
	}
	if !errors.Is(err, errFrameTooLarge) {
		t.Fatalf("expected errFrameTooLarge in chain, got %v", err)
	}
}

func TestValidatorUnknownMethodIsNotAnError(t *testing.T) {
	v := newSecurityValidator(Config{})
	msg, err := v.validate([]byte(`{"id":null,"method":"mining.configure_magic","params":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.kind != inboundUnrecognized || msg.method != "mining.configure_magic" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestValidatorNotify(t *testing.T) {
	v := newSecurityValidator(Config{})
	msg, err := v.validate(notifyFrame(t, "j1", true))
	if err != nil {
		t.Fatalf("validate notify: %v", err)
	}
	if msg.kind != inboundNotify || msg.job == nil || msg.job.JobID != "j1" || !msg.job.CleanJobs {
		t.Fatalf("unexpected notify %+v", msg)
	}

	_, err = v.validate(notifyFrame(t, "j1", true))
	if !errors.Is(err, errDuplicateNotify) {
		t.Fatalf("expected errDuplicateNotify, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Malformed {
		t.Fatalf("duplicate notify must not count as malformed: %v", err)
	}

	if _, err := v.validate(notifyFrame(t, "j2", false)); err != nil {
		t.Fatalf("distinct notify rejected: %v", err)
	}
}

func TestValidatorNotifyBadPrevHash(t *testing.T) {
	v := newSecurityValidator(Config{})
	params := testNotifyParams("j1", true)
	params[1] = "nothex"
	frame, _ := fastJSONMarshal(map[string]any{"id": nil, "method": methodNotify, "params": params})
	_, err := v.validate(frame)
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Malformed || ve.Method != methodNotify {
		t.Fatalf("expected malformed notify, got %v", err)
	}
}

func TestValidatorSetDifficultyBounds(t *testing.T) {
	v := newSecurityValidator(Config{})
	msg, err := v.validate([]byte(`{"id":null,"method":"mining.set_difficulty","params":[16]}`))
	if err != nil || msg.difficulty != 16 {
		t.Fatalf("valid set_difficulty: %+v %v", msg, err)
	}
	for _, params := range []string{`[]`, `[0]`, `[-4]`, `[1e16]`, `["abc"]`, `[null]`} {
		_, err := v.validate([]byte(`{"id":null,"method":"mining.set_difficulty","params":` + params + `}`))
		var ve *ValidationError
		if !errors.As(err, &ve) || !ve.Malformed {
			t.Fatalf("params %s: expected malformed, got %v", params, err)
		}
	}
}

func TestValidatorSetExtranonceAndReconnect(t *testing.T) {
	v := newSecurityValidator(Config{})
	msg, err := v.validate([]byte(`{"id":null,"method":"mining.set_extranonce","params":["aabb",4]}`))
	if err != nil {
		t.Fatalf("set_extranonce: %v", err)
	}
	if string(msg.extranonce1) != "\xaa\xbb" || msg.extranonce2Size != 4 {
		t.Fatalf("unexpected extranonce %x/%d", msg.extranonce1, msg.extranonce2Size)
	}
	if _, err := v.validate([]byte(`{"id":null,"method":"mining.set_extranonce","params":["aabb",9]}`)); err == nil {
		t.Fatalf("extranonce2 size 9 accepted")
	}

	msg, err = v.validate([]byte(`{"id":null,"method":"client.reconnect","params":["pool.test",3334,5]}`))
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if msg.reconnect.Host != "pool.test" || msg.reconnect.Port != 3334 || msg.reconnect.Wait != 5*time.Second {
		t.Fatalf("unexpected reconnect %+v", msg.reconnect)
	}
	msg, err = v.validate([]byte(`{"id":null,"method":"client.reconnect","params":["pool.test",3334,86400]}`))
	if err != nil || msg.reconnect.Wait != maxReconnectWait {
		t.Fatalf("reconnect wait not capped: %+v %v", msg.reconnect, err)
	}
}

func TestValidatorShowMessageSanitized(t *testing.T) {
	v := newSecurityValidator(Config{})
	msg, err := v.validate([]byte(`{"id":null,"method":"client.show_message","params":["hello\u0007 world\n"]}`))
	if err != nil {
		t.Fatalf("show_message: %v", err)
	}
	if msg.message != "hello world" {
		t.Fatalf("message not sanitized: %q", msg.message)
	}
}

func TestValidatorResponses(t *testing.T) {
	v := newSecurityValidator(Config{})
	msg, err := v.validate([]byte(`{"id":7,"result":null,"error":[23,"Low difficulty share",null]}`))
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	if msg.kind != inboundResponse || msg.responseID != 7 {
		t.Fatalf("unexpected response %+v", msg)
	}
	if msg.rpcErr == nil || msg.rpcErr.Code != 23 || msg.rpcErr.Message != "Low difficulty share" {
		t.Fatalf("unexpected rpc error %+v", msg.rpcErr)
	}

	for _, frame := range []string{`{"result":true}`, `{"id":-1,"result":true}`, `{"id":"x","result":true}`, `{"id":1,"error":42}`} {
		_, err := v.validate([]byte(frame))
		var ve *ValidationError
		if !errors.As(err, &ve) || !ve.Malformed {
			t.Fatalf("%s: expected malformed, got %v", frame, err)
		}
	}
}

func TestValidatorResponseMentioningMethod(t *testing.T) {
	v := newSecurityValidator(Config{})
	for _, frame := range []string{
		`{"id":7,"result":["method",":","x"],"error":null}`,
		`{"id":8,"result":null,"error":[20,"method not allowed",{"method":"mining.submit"}]}`,
	} {
		msg, err := v.validate([]byte(frame))
		if err != nil {
			t.Fatalf("%s: %v", frame, err)
		}
		if msg.kind != inboundResponse {
			t.Fatalf("%s: dispatched as %s, want response", frame, msg.kind)
		}
	}
}

func TestValidatorReplayedAck(t *testing.T) {
	v := newSecurityValidator(Config{})
	c := Candidate{JobID: "j1", Extranonce2: "00000001", NTime: "504e86b9", Nonce: "deadbeef"}
	v.noteSubmitted(5, c.key())

	if _, err := v.validate([]byte(`{"id":5,"result":true,"error":null}`)); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	_, err := v.validate([]byte(`{"id":5,"result":true,"error":null}`))
	if !errors.Is(err, errReplayedAck) {
		t.Fatalf("expected errReplayedAck, got %v", err)
	}

	// Same nonce on a different extranonce2 is a different share.
	other := c
	other.Extranonce2 = "00000002"
	v.noteSubmitted(6, other.key())
	if _, err := v.validate([]byte(`{"id":6,"result":true,"error":null}`)); err != nil {
		t.Fatalf("distinct share treated as replay: %v", err)
	}
}

func TestCheckCandidate(t *testing.T) {
	v := newSecurityValidator(Config{})
	good := Candidate{JobID: "j1", Extranonce2: "00000001", NTime: "504e86b9", Nonce: "deadbeef"}
	if err := v.checkCandidate(good, 4); err != nil {
		t.Fatalf("good candidate rejected: %v", err)
	}
	if err := v.checkCandidate(good, 0); !errors.Is(err, errExtranonceMissing) {
		t.Fatalf("expected errExtranonceMissing, got %v", err)
	}

	cases := map[string]func(c *Candidate){
		"short extranonce2": func(c *Candidate) { c.Extranonce2 = "0001" },
		"bad nonce":         func(c *Candidate) { c.Nonce = "deadbeeg" },
		"long ntime":        func(c *Candidate) { c.NTime = "504e86b900" },
		"empty job":         func(c *Candidate) { c.JobID = "" },
		"long job":          func(c *Candidate) { c.JobID = strings.Repeat("j", maxJobIDLen+1) },
	}
	for name, mutate := range cases {
		c := good
		mutate(&c)
		var ve *ValidationError
		if err := v.checkCandidate(c, 4); !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestParseStratumErrorShapes(t *testing.T) {
	se, err := parseStratumError([]any{float64(21), "Job not found", nil})
	if err != nil || se.Code != 21 || se.Message != "Job not found" {
		t.Fatalf("array shape: %+v %v", se, err)
	}
	se, err = parseStratumError(map[string]any{"code": float64(-1), "message": "Unauthorized worker"})
	if err != nil || se.Code != -1 || se.Message != "Unauthorized worker" {
		t.Fatalf("object shape: %+v %v", se, err)
	}
	se, err = parseStratumError("stale")
	if err != nil || se.Message != "stale" {
		t.Fatalf("string shape: %+v %v", se, err)
	}
	if se, err := parseStratumError(nil); se != nil || err != nil {
		t.Fatalf("nil shape: %+v %v", se, err)
	}
	if _, err := parseStratumError([]any{}); err == nil {
		t.Fatalf("empty array accepted")
	}
	if _, err := parseStratumError(true); err == nil {
		t.Fatalf("bool accepted")
	}
}

func TestMalformedFrameTracker(t *testing.T) {
	tr := newMalformedFrameTracker(3, 10*time.Second)
	now := time.Unix(1_700_000_000, 0)
	for i := 1; i <= 3; i++ {
		if tr.note(now) {
			t.Fatalf("tripped at %d, limit is 3", i)
		}
	}
	if !tr.note(now) {
		t.Fatalf("expected trip on the 4th malformed frame")
	}
	if tr.note(now.Add(11 * time.Second)) {
		t.Fatalf("count not reset after window")
	}
	if tr.totalSeen() != 5 {
		t.Fatalf("total %d, want 5", tr.totalSeen())
	}
}

func TestShareKeyDistinguishesFields(t *testing.T) {
	a := makeShareKey("j1", "00000001", "504e86b9", "deadbeef")
	if a != makeShareKey("j1", "00000001", "504e86b9", "deadbeef") {
		t.Fatalf("equal inputs gave different keys")
	}
	for _, b := range []shareKey{
		makeShareKey("j2", "00000001", "504e86b9", "deadbeef"),
		makeShareKey("j1", "00000002", "504e86b9", "deadbeef"),
		makeShareKey("j1", "00000001", "504e86ba", "deadbeef"),
		makeShareKey("j1", "00000001", "504e86b9", "deadbeee"),
	} {
		if a == b {
			t.Fatalf("distinct shares collided")
		}
	}
	set := newShareKeySet(2)
	if set.seenOrAdd(a) || !set.seenOrAdd(a) {
		t.Fatalf("seenOrAdd semantics")
	}
	set.remove(a)
	if set.seenOrAdd(a) {
		t.Fatalf("remove did not drop key")
	}
}
