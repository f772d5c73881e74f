package main

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const maxWorkerIdentityLen = 256

func buildWorkerIdentity(primary, auxiliary, worker string) string {
	return primary + "." + auxiliary + "." + worker
}

// validateWorkerIdentity rejects characters pools would choke on. The dot
// is the field separator so it may not appear inside any part.
func validateWorkerIdentity(primary, auxiliary, worker string) error {
	if primary == "" {
		return fmt.Errorf("worker.primary_wallet is required")
	}
	if auxiliary == "" {
		return fmt.Errorf("worker.auxiliary_wallet is required")
	}
	if worker == "" {
		return fmt.Errorf("worker.name is required")
	}
	if !isAlphanumeric(primary) {
		return fmt.Errorf("worker.primary_wallet %q must be alphanumeric", primary)
	}
	if !isAlphanumeric(auxiliary) {
		return fmt.Errorf("worker.auxiliary_wallet %q must be alphanumeric", auxiliary)
	}
	for i := 0; i < len(worker); i++ {
		c := worker[i]
		if !isAlnumByte(c) && c != '_' && c != '-' {
			return fmt.Errorf("worker.name %q may only contain letters, digits, '_' and '-'", worker)
		}
	}
	if n := len(buildWorkerIdentity(primary, auxiliary, worker)); n > maxWorkerIdentityLen {
		return fmt.Errorf("worker identity is %d bytes, limit is %d", n, maxWorkerIdentityLen)
	}
	return nil
}

func isAlnumByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isAlnumByte(s[i]) {
			return false
		}
	}
	return s != ""
}

// walletEncoding reports which address encoding a wallet string decodes
// as, or "" when it is neither base58check nor bech32. Pools decide what
// is acceptable; this only catches typos before the first authorize.
func walletEncoding(addr string) string {
	if _, _, err := base58.CheckDecode(addr); err == nil {
		return "base58check"
	}
	if _, _, err := bech32.Decode(strings.ToLower(addr)); err == nil {
		return "bech32"
	}
	return ""
}

func warnUncheckedWallets(cfg Config) {
	for _, w := range []struct{ key, addr string }{
		{"worker.primary_wallet", cfg.PrimaryWallet},
		{"worker.auxiliary_wallet", cfg.AuxiliaryWallet},
	} {
		if enc := walletEncoding(w.addr); enc == "" {
			logger.Warn("wallet does not decode as base58check or bech32; check for typos", "key", w.key, "wallet", w.addr)
		} else {
			logger.Debug("wallet encoding", "key", w.key, "encoding", enc)
		}
	}
}
