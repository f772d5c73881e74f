//go:build !nojsonsimd

package main

import "github.com/bytedance/sonic"

// stratumJSON keeps sonic's defaults except that numbers decode as
// json.Number so job ids and difficulties survive without float rounding.
var stratumJSON = sonic.Config{UseNumber: true}.Froze()

func fastJSONMarshal(v any) ([]byte, error) {
	return sonic.ConfigDefault.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v any) error {
	return stratumJSON.Unmarshal(data, v)
}
