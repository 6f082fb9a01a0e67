// Package tlscred implements the TLS credential manager of spec.md §4.8:
// self-signed ECDSA P-256 bootstrap, rotation with a signed rollover
// ledger, and mtime-polled hot reload for the accept loop.
package tlscred

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/logger"
)

const bootstrapValidity = 365 * 24 * time.Hour

// Manager owns the current TLS certificate/key pair on disk and in
// memory, the rollover ledger, and the mtime-poll hot-reload loop.
type Manager struct {
	certPath   string
	keyPath    string
	ledgerPath string
	dnsNames   []string
	host       string
	port       int

	rolloverGrace time.Duration
	nonceLength   int
	historyLength int

	mu        sync.RWMutex
	cert      *tls.Certificate
	certMtime time.Time
}

// New constructs a Manager bound to cfg's paths and rollover parameters.
func New(cfg *config.TLSConfig, host string, port int) *Manager {
	return &Manager{
		certPath:      cfg.CertPath,
		keyPath:       cfg.KeyPath,
		ledgerPath:    cfg.LedgerPath,
		dnsNames:      cfg.DNSNames,
		host:          host,
		port:          port,
		rolloverGrace: cfg.RolloverGrace,
		nonceLength:   cfg.NonceLength,
		historyLength: cfg.RolloverHistoryLength,
	}
}

// Bootstrap generates a self-signed ECDSA P-256 certificate valid for 365
// days if cert/key files are absent, then loads whatever is on disk into
// memory. Partial writes from a failed generation are cleaned up.
func (m *Manager) Bootstrap() error {
	_, certErr := os.Stat(m.certPath)
	_, keyErr := os.Stat(m.keyPath)
	if os.IsNotExist(certErr) || os.IsNotExist(keyErr) {
		if err := m.generateAndWrite(m.certPath, m.keyPath, bootstrapValidity); err != nil {
			return fmt.Errorf("tlscred: bootstrap: %w", err)
		}
		logger.Info("bootstrapped self-signed TLS credential", logger.Identity(m.host))
	}
	return m.Reload()
}

// Reload reads the current cert/key pair from disk into memory, recording
// the certificate file's mtime for the hot-reload poll.
func (m *Manager) Reload() error {
	cert, err := tls.LoadX509KeyPair(m.certPath, m.keyPath)
	if err != nil {
		return fmt.Errorf("tlscred: load key pair: %w", err)
	}
	info, err := os.Stat(m.certPath)
	if err != nil {
		return fmt.Errorf("tlscred: stat cert: %w", err)
	}

	m.mu.Lock()
	m.cert = &cert
	m.certMtime = info.ModTime()
	m.mu.Unlock()
	return nil
}

// GetCertificate satisfies tls.Config.GetCertificate.
func (m *Manager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil {
		return nil, fmt.Errorf("tlscred: no certificate loaded")
	}
	return m.cert, nil
}

// ServerTLSConfig returns the server-auth-only TLS 1.2+ config, cert
// sourced live via GetCertificate so a rotation or reload takes effect on
// the next handshake without rebuilding the listener.
func (m *Manager) ServerTLSConfig(cipherSuites []uint16) *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		CipherSuites:   cipherSuites,
		GetCertificate: m.GetCertificate,
		ClientAuth:     tls.NoClientCert,
	}
}

// generateAndWrite creates a new self-signed ECDSA P-256 key+certificate
// valid for the given duration and writes both PEM files, cleaning up on
// error so a failed generation never leaves a half-written pair behind.
func (m *Manager) generateAndWrite(certPath, keyPath string, validity time.Duration) (err error) {
	key, cert, err := m.generate(validity)
	if err != nil {
		return err
	}

	if mkErr := os.MkdirAll(filepath.Dir(certPath), 0o755); mkErr != nil {
		return fmt.Errorf("create cert directory: %w", mkErr)
	}
	if mkErr := os.MkdirAll(filepath.Dir(keyPath), 0o755); mkErr != nil {
		return fmt.Errorf("create key directory: %w", mkErr)
	}

	defer func() {
		if err != nil {
			os.Remove(certPath)
			os.Remove(keyPath)
		}
	}()

	if err = writeCertPEM(certPath, cert); err != nil {
		return err
	}
	if err = writeKeyPEM(keyPath, key); err != nil {
		return err
	}
	return nil
}

// generate builds a self-signed ECDSA P-256 key and certificate with the
// configured DNS SAN, valid from now for validity.
func (m *Manager) generate(validity time.Duration) (*ecdsa.PrivateKey, *x509.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ECDSA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"keeld"}, CommonName: m.host},
		NotBefore:    now,
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     m.dnsNames,
	}
	for _, name := range m.dnsNames {
		if ip := net.ParseIP(name); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}
	return key, cert, nil
}
