package tlscred

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelfs/keeld/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.TLSConfig{
		CertPath:              filepath.Join(dir, "server.crt"),
		KeyPath:               filepath.Join(dir, "server.key"),
		LedgerPath:            filepath.Join(dir, "rollover.json"),
		DNSNames:              []string{"keeld.local"},
		RolloverGrace:         time.Hour,
		NonceLength:           16,
		RolloverHistoryLength: 3,
	}
	return New(cfg, "keeld.local", 4433)
}

func TestBootstrapGeneratesCredentialOnce(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Bootstrap())

	assert.FileExists(t, m.certPath)
	assert.FileExists(t, m.keyPath)

	cert, err := loadCertPEM(m.certPath)
	require.NoError(t, err)
	assert.Equal(t, x509.ECDSA, cert.PublicKeyAlgorithm)
	assert.Contains(t, cert.DNSNames, "keeld.local")

	firstModTime := m.certMtime
	require.NoError(t, m.Bootstrap())
	assert.Equal(t, firstModTime, m.certMtime, "bootstrap must not regenerate an existing credential")
}

func TestGetCertificateReturnsLoadedCredential(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Bootstrap())

	cert, err := m.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotNil(t, cert.PrivateKey)
}

func TestRotateReplacesCredentialAndAppendsLedger(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Bootstrap())

	oldCert, err := loadCertPEM(m.certPath)
	require.NoError(t, err)
	oldFingerprint := sha256.Sum256(oldCert.Raw)

	require.NoError(t, m.Rotate("scheduled"))

	newCert, err := loadCertPEM(m.certPath)
	require.NoError(t, err)
	assert.NotEqual(t, oldCert.Raw, newCert.Raw, "rotation must replace the certificate")

	entries, err := loadLedger(m.ledgerPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, hex.EncodeToString(oldFingerprint[:]), entry.OldCertFingerprint)
	assert.Equal(t, "scheduled", entry.Reason)

	oldPubHashBytes, err := hex.DecodeString(entry.OldPubKeyHash)
	require.NoError(t, err)
	newPubHashBytes, err := hex.DecodeString(entry.NewPubKeyHash)
	require.NoError(t, err)
	nonceBytes, err := hex.DecodeString(entry.Nonce)
	require.NoError(t, err)
	sigBytes, err := hex.DecodeString(entry.Signature)
	require.NoError(t, err)

	oldPub, ok := oldCert.PublicKey.(*ecdsa.PublicKey)
	require.True(t, ok)
	wantOldHash, err := publicKeyHash(oldPub)
	require.NoError(t, err)
	assert.Equal(t, wantOldHash, oldPubHashBytes)

	signed := append(append(append([]byte{}, oldPubHashBytes...), newPubHashBytes...), nonceBytes...)
	digest := sha256.Sum256(signed)
	assert.True(t, ecdsa.VerifyASN1(oldPub, digest[:], sigBytes), "rollover token must verify against the old certificate's public key")
}

func TestRotateTrimsLedgerToHistoryLength(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Bootstrap())

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Rotate("periodic"))
	}

	entries, err := loadLedger(m.ledgerPath)
	require.NoError(t, err)
	assert.Len(t, entries, m.historyLength)
}

func TestWatchDetectsMtimeChangeAndReloads(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Bootstrap())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := m.Watch(ctx, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Rotate("test-trigger"))
	require.NoError(t, os.Chtimes(m.certPath, time.Now().Add(time.Second), time.Now().Add(time.Second)))

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("expected a reload signal after the certificate file's mtime changed")
	}
}
