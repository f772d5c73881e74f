//go:build nojsonsimd

package main

import (
	"bytes"
	stdjson "encoding/json"
)

func fastJSONMarshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v any) error {
	dec := stdjson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
