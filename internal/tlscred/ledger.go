package tlscred

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LedgerEntry is one signed rollover token of spec.md §4.8, keyed by the
// old certificate's SHA-256 fingerprint.
type LedgerEntry struct {
	OldCertFingerprint string    `json:"old_cert_fingerprint"`
	Host               string    `json:"host"`
	Port               int       `json:"port"`
	OldCertDER         string    `json:"old_cert_der"`
	OldPubKeyHash      string    `json:"old_pubkey_hash"`
	NewPubKeyHash      string    `json:"new_pubkey_hash"`
	IssuedAt           time.Time `json:"issued_at"`
	ValidUntil         time.Time `json:"valid_until"`
	Reason             string    `json:"reason"`
	Nonce              string    `json:"nonce"`
	Signature          string    `json:"signature"`
}

// loadLedger reads the JSON ledger array, tolerating a missing file as an
// empty ledger (first rotation ever).
func loadLedger(path string) ([]LedgerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return entries, nil
}

func saveLedger(path string, entries []LedgerEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// appendEntry trims the on-disk ledger to historyLength-1 most-recent
// entries, then appends entry, keeping the ledger capped at historyLength.
func appendEntry(path string, entry LedgerEntry, historyLength int) error {
	entries, err := loadLedger(path)
	if err != nil {
		return err
	}
	if keep := historyLength - 1; len(entries) > keep {
		if keep <= 0 {
			entries = nil
		} else {
			entries = entries[len(entries)-keep:]
		}
	}
	entries = append(entries, entry)
	return saveLedger(path, entries)
}
