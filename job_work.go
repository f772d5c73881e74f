package main

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// WorkUnit is everything a compute engine needs to search one extranonce2
// slice of a job. Header is the 80-byte block header with a zero nonce.
type WorkUnit struct {
	JobID         string  `json:"job_id"`
	Extranonce1   string  `json:"extranonce1"`
	Extranonce2   string  `json:"extranonce2"`
	NTime         string  `json:"ntime"`
	NBits         string  `json:"nbits"`
	Version       string  `json:"version"`
	PrevHash      string  `json:"prevhash"`
	MerkleRoot    string  `json:"merkle_root"`
	Header        string  `json:"header"`
	Target        string  `json:"target"`
	NetworkTarget string  `json:"network_target"`
	Difficulty    float64 `json:"difficulty"`
	// NetworkDifficulty is nbits expressed against the same difficulty-1
	// target as Difficulty.
	NetworkDifficulty float64 `json:"network_difficulty"`
	CleanJobs         bool    `json:"clean_jobs"`
	Epoch             uint64  `json:"epoch"`
}

// Candidate builds the submission for a nonce found on this unit.
func (w WorkUnit) Candidate(nonce uint32) Candidate {
	return Candidate{
		JobID:       w.JobID,
		Extranonce2: w.Extranonce2,
		NTime:       w.NTime,
		Nonce:       uint32ToBEHex(nonce),
		Epoch:       w.Epoch,
	}
}

func buildCoinbase(job *Job, extranonce1 []byte, en2 uint64, size int) []byte {
	en2Bytes, _ := hex.DecodeString(encodeExtranonce2(en2, size))
	cb := make([]byte, 0, len(job.coinb1)+len(extranonce1)+len(en2Bytes)+len(job.coinb2))
	cb = append(cb, job.coinb1...)
	cb = append(cb, extranonce1...)
	cb = append(cb, en2Bytes...)
	return append(cb, job.coinb2...)
}

func buildHeader(job *Job, merkleRoot [32]byte) []byte {
	hdr := wire.BlockHeader{
		Version:    int32(job.version),
		PrevBlock:  chainhash.Hash(job.prevHash),
		MerkleRoot: chainhash.Hash(merkleRoot),
		Timestamp:  time.Unix(int64(job.ntime), 0),
		Bits:       job.bits,
	}
	var buf bytes.Buffer
	buf.Grow(wire.MaxBlockHeaderPayload)
	_ = hdr.Serialize(&buf)
	return buf.Bytes()
}

func buildWorkUnit(job *Job, extranonce1 []byte, en2 uint64, size int, epoch uint64, diff float64, target, diff1 *big.Int) WorkUnit {
	cbHash := doubleSHA256(buildCoinbase(job, extranonce1, en2, size))
	root := merkleRootFromBranches(cbHash, job.branches)
	network := networkTargetFromBits(job.bits)
	return WorkUnit{
		JobID:             job.JobID,
		Extranonce1:       hex.EncodeToString(extranonce1),
		Extranonce2:       encodeExtranonce2(en2, size),
		NTime:             job.NTime,
		NBits:             job.NBits,
		Version:           job.Version,
		PrevHash:          job.PrevHash,
		MerkleRoot:        chainhash.Hash(root).String(),
		Header:            hex.EncodeToString(buildHeader(job, root)),
		Target:            targetHex(target),
		NetworkTarget:     targetHex(network),
		Difficulty:        diff,
		NetworkDifficulty: difficultyFromTarget(network, diff1),
		CleanJobs:         job.CleanJobs,
		Epoch:             epoch,
	}
}
