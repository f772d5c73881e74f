//go:build !noavx

package main

import simdsha "github.com/minio/sha256-simd"

func init() {
	sha256Sum = simdsha.Sum256
}

// sha256Backend names the hash implementation for the startup banner.
func sha256Backend() string {
	return "minio/sha256-simd"
}
