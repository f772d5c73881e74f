//go:build !nojsonsimd

package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Pretouch the frame types so the first notify after connect does not
	// pay sonic's codegen cost. Failures only cost that first-hit latency.
	_ = sonic.Pretouch(reflect.TypeOf(stratumRequest{}))
	_ = sonic.Pretouch(reflect.TypeOf(stratumReply{}))
	_ = sonic.Pretouch(reflect.TypeOf(rawStratumMessage{}))
	_ = sonic.Pretouch(reflect.TypeOf(WorkUnit{}))
	_ = sonic.Pretouch(reflect.TypeOf(engineRequest{}))
	_ = sonic.Pretouch(reflect.TypeOf(publishedEvent{}))
}
