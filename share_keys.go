package main

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const maxShareKeyBytes = maxJobIDLen + 2*maxExtranonce2Size + 8 + 8 + 3

// shareKey is a compact, comparable identity for one submission: job id,
// extranonce2, ntime and nonce. Including extranonce2 and ntime keeps a
// repeated nonce on different work from looking like a replay.
type shareKey struct {
	n   uint8
	buf [maxShareKeyBytes]byte
}

func makeShareKey(jobID, extranonce2, ntime, nonce string) shareKey {
	var k shareKey
	write := func(s string) {
		for i := 0; i < len(s) && int(k.n) < maxShareKeyBytes; i++ {
			k.buf[k.n] = s[i]
			k.n++
		}
	}
	sep := func() {
		if int(k.n) < maxShareKeyBytes {
			k.buf[k.n] = ':'
			k.n++
		}
	}
	write(jobID)
	sep()
	write(extranonce2)
	sep()
	write(ntime)
	sep()
	write(nonce)
	return k
}

func (c Candidate) key() shareKey {
	return makeShareKey(c.JobID, c.Extranonce2, c.NTime, c.Nonce)
}

// shareKeySet is a bounded LRU of share keys.
type shareKeySet struct {
	cache *lru.Cache[shareKey, struct{}]
}

func newShareKeySet(size int) *shareKeySet {
	if size <= 0 {
		size = defaultReplayCacheSize
	}
	cache, err := lru.New[shareKey, struct{}](size)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}
	return &shareKeySet{cache: cache}
}

// seenOrAdd reports whether key was already present and records it if not.
func (s *shareKeySet) seenOrAdd(key shareKey) bool {
	found, _ := s.cache.ContainsOrAdd(key, struct{}{})
	return found
}

func (s *shareKeySet) remove(key shareKey) {
	s.cache.Remove(key)
}
