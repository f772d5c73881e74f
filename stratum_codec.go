package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// frameReader splits a stream into newline-terminated frames of at most
// max bytes. The returned slice is only valid until the next call.
type frameReader struct {
	r   *bufio.Reader
	max int
}

func newFrameReader(r io.Reader, max int) *frameReader {
	if max <= 0 {
		max = maxStratumMessageSize
	}
	// Room for a full max-byte frame plus its "\r\n" terminator.
	return &frameReader{r: bufio.NewReaderSize(r, max+2), max: max}
}

// readFrame returns the next non-empty frame. An oversized frame is
// skipped through its terminating newline and reported as errFrameTooLarge
// so the caller can keep reading.
func (fr *frameReader) readFrame() ([]byte, error) {
	for {
		line, err := fr.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = fr.r.ReadSlice('\n')
			}
			if err != nil {
				return nil, err
			}
			return nil, errFrameTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
				// Trailing partial frame at EOF is never dispatched.
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > fr.max {
			return nil, errFrameTooLarge
		}
		return line, nil
	}
}

func encodeRequest(id uint64, method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	data, err := fastJSONMarshal(stratumRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	return append(data, '\n'), nil
}

func encodeReply(id any, result any) ([]byte, error) {
	data, err := fastJSONMarshal(stratumReply{ID: id, Result: result})
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeFrame(line []byte) (rawStratumMessage, error) {
	var msg rawStratumMessage
	if len(line) == 0 || line[0] != '{' {
		return msg, malformed("", "frame is not a JSON object")
	}
	if err := fastJSONUnmarshal(line, &msg); err != nil {
		return msg, &ValidationError{Reason: "invalid JSON", Malformed: true, Err: err}
	}
	return msg, nil
}

// encodeExtranonce2 renders v as a fixed-width big-endian hex string of
// size bytes.
func encodeExtranonce2(v uint64, size int) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return hex.EncodeToString(buf[8-size:])
}

func decodeExtranonce2(s string, size int) (uint64, error) {
	if size < minExtranonce2Size || size > maxExtranonce2Size {
		return 0, fmt.Errorf("extranonce2 size %d out of range", size)
	}
	var buf [8]byte
	if err := decodeHexToFixedBytes(buf[8-size:], s); err != nil {
		return 0, fmt.Errorf("extranonce2: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// extranonce2Limit is the number of distinct values a size-byte counter holds,
// or 0 when it spans the full uint64 range.
func extranonce2Limit(size int) uint64 {
	if size >= 8 {
		return 0
	}
	return uint64(1) << (8 * uint(size))
}

func jsonFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func jsonUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n > float64(math.MaxInt64) {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func jsonInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
