package main

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

func TestFrameReaderSkipsOversizedFrameAndResyncs(t *testing.T) {
	big := `{"id":1,"result":"` + strings.Repeat("a", 200) + `"}`
	input := big + "\n\n" + `{"id":2,"result":true}` + "\n"
	fr := newFrameReader(strings.NewReader(input), 64)

	if _, err := fr.readFrame(); !errors.Is(err, errFrameTooLarge) {
		t.Fatalf("expected errFrameTooLarge, got %v", err)
	}
	frame, err := fr.readFrame()
	if err != nil {
		t.Fatalf("read after oversize: %v", err)
	}
	if string(frame) != `{"id":2,"result":true}` {
		t.Fatalf("unexpected frame %q", frame)
	}
	if _, err := fr.readFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFrameReaderLimitIsInclusive(t *testing.T) {
	const limit = 1024
	frameOf := func(n int) string {
		return `{"id":1,"result":"` + strings.Repeat("a", n-20) + `"}`
	}
	exact := frameOf(limit)
	if len(exact) != limit {
		t.Fatalf("frame length %d", len(exact))
	}
	input := exact + "\n" + exact + "\r\n" + frameOf(limit+1) + "\r\n" + `{"id":2,"result":true}` + "\n"
	fr := newFrameReader(strings.NewReader(input), limit)
	v := newSecurityValidator(Config{MaxFrameBytes: limit})

	for i := range 2 {
		frame, err := fr.readFrame()
		if err != nil {
			t.Fatalf("frame %d at the limit: %v", i, err)
		}
		if _, err := v.validate(frame); err != nil {
			t.Fatalf("validator rejected a frame the reader accepted: %v", err)
		}
	}
	if _, err := fr.readFrame(); !errors.Is(err, errFrameTooLarge) {
		t.Fatalf("expected errFrameTooLarge one byte over the limit, got %v", err)
	}
	if frame, err := fr.readFrame(); err != nil || string(frame) != `{"id":2,"result":true}` {
		t.Fatalf("no resync after oversize: %q %v", frame, err)
	}
}

func TestFrameReaderPartialFrameAtEOF(t *testing.T) {
	fr := newFrameReader(strings.NewReader(`{"id":1,"res`), 1024)
	if _, err := fr.readFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestEncodeRequestIsOneLine(t *testing.T) {
	b, err := encodeRequest(7, methodSubmit, []any{"w", "job", "00000001", "504e86b9", "deadbeef"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Count(string(b), "\n") != 1 || b[len(b)-1] != '\n' {
		t.Fatalf("expected exactly one trailing newline, got %q", b)
	}
	msg, err := decodeFrame(b[:len(b)-1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Method != methodSubmit || len(msg.Params) != 5 {
		t.Fatalf("unexpected decode %+v", msg)
	}
	if id, ok := jsonUint(msg.ID); !ok || id != 7 {
		t.Fatalf("id = %v, want 7", msg.ID)
	}
}

func TestDecodeFrameRejectsNonObject(t *testing.T) {
	for _, in := range []string{`[1,2]`, `garbage`, `{"id":`} {
		_, err := decodeFrame([]byte(in))
		var ve *ValidationError
		if !errors.As(err, &ve) || !ve.Malformed {
			t.Fatalf("%q: expected malformed ValidationError, got %v", in, err)
		}
	}
}

func TestExtranonce2RoundTripBigEndian(t *testing.T) {
	for size := 1; size <= 8; size++ {
		var limit uint64 = math.MaxUint64
		if l := extranonce2Limit(size); l != 0 {
			limit = l - 1
		}
		for _, v := range []uint64{0, 1, 0x80, limit / 2, limit} {
			if v > limit {
				continue
			}
			s := encodeExtranonce2(v, size)
			if len(s) != size*2 {
				t.Fatalf("size %d value %d: encoded %q has wrong width", size, v, s)
			}
			got, err := decodeExtranonce2(s, size)
			if err != nil {
				t.Fatalf("size %d decode %q: %v", size, s, err)
			}
			if got != v {
				t.Fatalf("size %d: round trip %d -> %q -> %d", size, v, s, got)
			}
		}
	}
	if got := encodeExtranonce2(1, 4); got != "00000001" {
		t.Fatalf("expected big-endian 00000001, got %s", got)
	}
	if got := encodeExtranonce2(0x0102, 2); got != "0102" {
		t.Fatalf("expected 0102, got %s", got)
	}
}

func TestSniffMethod(t *testing.T) {
	cases := []struct {
		in     string
		method string
		ok     bool
	}{
		{`{"id":null,"method":"mining.notify","params":[]}`, "mining.notify", true},
		{`{"method" : "client.reconnect"}`, "client.reconnect", true},
		{`{"id":1,"result":true}`, "", false},
		{`{"method":null}`, "", false},
		{`{"method":"a\"b"}`, "", false},
		{`{"id":7,"result":["method",":","x"],"error":null}`, "", false},
		{`{"id":7,"result":{"method":"x"},"error":null}`, "", false},
		{`{"id":7,"error":[20,"method",null],"result":null}`, "", false},
		{`{"id":7,"result":"method","error":null}`, "", false},
		{`{"params":["method"],"method":"mining.ping"}`, "mining.ping", true},
		{`{"note":"say \"method\"","method":"mining.ping"}`, "mining.ping", true},
		{`["method","mining.ping"]`, "", false},
	}
	for _, tc := range cases {
		got, ok := sniffMethod([]byte(tc.in))
		if got != tc.method || ok != tc.ok {
			t.Fatalf("sniffMethod(%s) = %q,%v want %q,%v", tc.in, got, ok, tc.method, tc.ok)
		}
	}
}

func TestJSONNumberHelpers(t *testing.T) {
	if v, ok := jsonFloat("16"); !ok || v != 16 {
		t.Fatalf("jsonFloat string: %v %v", v, ok)
	}
	if _, ok := jsonFloat(math.Inf(1)); ok {
		t.Fatalf("jsonFloat accepted +Inf")
	}
	if _, ok := jsonUint(float64(-1)); ok {
		t.Fatalf("jsonUint accepted negative")
	}
	if _, ok := jsonInt(1.5); ok {
		t.Fatalf("jsonInt accepted fraction")
	}
}
