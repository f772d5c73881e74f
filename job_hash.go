package main

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/btcsuite/btcd/blockchain"
)

// Difficulty-1 share targets. Scrypt pools scale share difficulty by 2^16
// relative to sha256d, so their diff-1 target is 0x0000ffff << 224.
var (
	diff1TargetSHA256d = mustHexBig("00000000FFFF0000000000000000000000000000000000000000000000000000")
	diff1TargetScrypt  = mustHexBig("0000FFFF00000000000000000000000000000000000000000000000000000000")
)

// maxUint256 is the maximum value representable in 256 bits.
var maxUint256 = func() *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), 256)
	return n.Sub(n, big.NewInt(1))
}()

func mustHexBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("bad hex constant " + s)
	}
	return n
}

func diff1TargetFor(algorithm string) *big.Int {
	if algorithm == algoSHA256d {
		return diff1TargetSHA256d
	}
	return diff1TargetScrypt
}

// targetFromDifficulty returns diff1 / diff truncated to an integer and
// clamped to [1, 2^256-1].
func targetFromDifficulty(diff float64, diff1 *big.Int) *big.Int {
	if diff <= 0 {
		return new(big.Int).Set(maxUint256)
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(diff, 'g', -1, 64))
	if !ok || r.Sign() <= 0 {
		return new(big.Int).Set(maxUint256)
	}
	target := new(big.Rat).SetInt(diff1)
	target.Quo(target, r)
	tgt := new(big.Int).Quo(target.Num(), target.Denom())
	if tgt.Sign() == 0 {
		tgt = big.NewInt(1)
	}
	if tgt.Cmp(maxUint256) > 0 {
		tgt = new(big.Int).Set(maxUint256)
	}
	return tgt
}

func difficultyFromTarget(target, diff1 *big.Int) float64 {
	if target == nil || target.Sign() <= 0 {
		return 0
	}
	f := new(big.Float).SetPrec(256).SetInt(diff1)
	f.Quo(f, new(big.Float).SetPrec(256).SetInt(target))
	val, _ := f.Float64()
	return val
}

// targetHex renders a target as 64 big-endian hex characters.
func targetHex(target *big.Int) string {
	return fmt.Sprintf("%064x", target)
}

// networkTargetFromBits expands the compact nBits encoding from a notify.
func networkTargetFromBits(bits uint32) *big.Int {
	return blockchain.CompactToBig(bits)
}

// merkleRootFromBranches folds the coinbase txid up the branch list the
// pool sent. All values are in internal byte order.
func merkleRootFromBranches(coinbaseHash [32]byte, branches [][32]byte) [32]byte {
	root := coinbaseHash
	var buf [64]byte
	for _, b := range branches {
		copy(buf[:32], root[:])
		copy(buf[32:], b[:])
		root = doubleSHA256(buf[:])
	}
	return root
}
