package tlscred

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/keelfs/keeld/internal/logger"
)

// Rotate generates a new cert+key, replaces the files on disk, then
// appends a signed rollover token to the ledger. The token is signed by
// the OLD private key over (old_pubkey_hash || new_pubkey_hash || nonce)
// using ECDSA-SHA256, so a client that trusts the old cert's fingerprint
// can verify the rollover actually originated from that key.
func (m *Manager) Rotate(reason string) error {
	oldKey, oldCert, err := m.currentKeyAndCert()
	if err != nil {
		return fmt.Errorf("tlscred: load current credential for rotation: %w", err)
	}

	newKey, newCert, err := m.generate(bootstrapValidity)
	if err != nil {
		return fmt.Errorf("tlscred: generate rotated credential: %w", err)
	}

	oldPubHash, err := publicKeyHash(&oldKey.PublicKey)
	if err != nil {
		return fmt.Errorf("tlscred: hash old public key: %w", err)
	}
	newPubHash, err := publicKeyHash(&newKey.PublicKey)
	if err != nil {
		return fmt.Errorf("tlscred: hash new public key: %w", err)
	}

	nonce := make([]byte, m.nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("tlscred: generate nonce: %w", err)
	}

	signed := append(append(append([]byte{}, oldPubHash...), newPubHash...), nonce...)
	digest := sha256.Sum256(signed)
	signature, err := ecdsa.SignASN1(rand.Reader, oldKey, digest[:])
	if err != nil {
		return fmt.Errorf("tlscred: sign rollover token: %w", err)
	}

	fingerprint := sha256.Sum256(oldCert.Raw)

	now := time.Now()
	entry := LedgerEntry{
		OldCertFingerprint: hex.EncodeToString(fingerprint[:]),
		Host:               m.host,
		Port:               m.port,
		OldCertDER:         hex.EncodeToString(oldCert.Raw),
		OldPubKeyHash:      hex.EncodeToString(oldPubHash),
		NewPubKeyHash:      hex.EncodeToString(newPubHash),
		IssuedAt:           now,
		ValidUntil:         now.Add(m.rolloverGrace),
		Reason:             reason,
		Nonce:              hex.EncodeToString(nonce),
		Signature:          hex.EncodeToString(signature),
	}

	if err := m.generateAndWriteCert(newKey, newCert); err != nil {
		return fmt.Errorf("tlscred: write rotated credential: %w", err)
	}
	if err := appendEntry(m.ledgerPath, entry, m.historyLength); err != nil {
		return fmt.Errorf("tlscred: append rollover ledger entry: %w", err)
	}
	if err := m.Reload(); err != nil {
		return fmt.Errorf("tlscred: reload after rotation: %w", err)
	}

	logger.Info("rotated TLS credential", logger.Identity(m.host))
	return nil
}

// currentKeyAndCert reads the cert/key pair directly from disk (not the
// in-memory cache) so rotation always signs with the key actually on
// disk right now.
func (m *Manager) currentKeyAndCert() (*ecdsa.PrivateKey, *x509.Certificate, error) {
	key, err := loadECPrivateKey(m.keyPath)
	if err != nil {
		return nil, nil, err
	}
	certPEM, err := loadCertPEM(m.certPath)
	if err != nil {
		return nil, nil, err
	}
	return key, certPEM, nil
}

func (m *Manager) generateAndWriteCert(key *ecdsa.PrivateKey, cert *x509.Certificate) (err error) {
	defer func() {
		if err != nil {
			m.Reload()
		}
	}()
	if err = writeCertPEM(m.certPath, cert); err != nil {
		return err
	}
	if err = writeKeyPEM(m.keyPath, key); err != nil {
		return err
	}
	return nil
}

func publicKeyHash(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(der)
	return sum[:], nil
}
