//go:build noavx

package main

import stdsha "crypto/sha256"

func init() {
	sha256Sum = stdsha.Sum256
}

func sha256Backend() string {
	return "crypto/sha256 (noavx build)"
}
