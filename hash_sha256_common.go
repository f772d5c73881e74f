package main

type sha256SumFunc func([]byte) [32]byte

var sha256Sum sha256SumFunc

// doubleSHA256 is the hash used for coinbase txids and merkle nodes.
func doubleSHA256(b []byte) [32]byte {
	first := sha256Sum(b)
	return sha256Sum(first[:])
}
