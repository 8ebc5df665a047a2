// Package tls builds the server-side TLS configuration of the admin API.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/tbox/internal/fsutil"
)

const (
	CACertFile = "tls_ca.crt"
	CertFile   = "tls.crt"
	KeyFile    = "tls.key"
)

var ErrNoCertificate = errors.New("TLS enabled but no valid certificate configuration found")

// parseVersion parses a TLS version string; ok is false for "" and "default".
func parseVersion(ver string) (uint16, bool) {
	switch ver {
	case "1.2", "TLS1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "TLS1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// versions resolves the allowed range; both ends default to 1.3.
func versions(cfg Config) (min uint16, max uint16) {
	min = tls.VersionTLS13
	max = tls.VersionTLS13
	if v, ok := parseVersion(cfg.MinVersion); ok {
		min = v
	}
	if v, ok := parseVersion(cfg.MaxVersion); ok {
		max = v
	}
	if min > max {
		max = min
	}
	return
}

// safeReadFile reads p only if it lies within baseDir.
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certificateFunc reloads the pair on every handshake so rotated files are
// picked up without a restart.
func certificateFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		readCert, err := safeReadFile(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		readKey, err := safeReadFile(filepath.Dir(keyFile), keyFile)
		if err != nil {
			return nil, err
		}
		certificate, err := tls.X509KeyPair(readCert, readKey)
		return &certificate, err
	}
}

// Setup returns the server TLS config for cfg, or nil when TLS is disabled.
func Setup(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	minVer, maxVer := versions(cfg)

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		if err := checkPair(cfg.CertFile, cfg.KeyFile); err != nil {
			return nil, err
		}
		return newConfig(cfg.CertFile, cfg.KeyFile, minVer, maxVer), nil
	}

	if cfg.Dir != "" {
		certPath := filepath.Join(cfg.Dir, CertFile)
		keyPath := filepath.Join(cfg.Dir, KeyFile)
		if cfg.AutoGenerate && !(fsutil.Exists(nil, certPath) && fsutil.Exists(nil, keyPath)) {
			if err := generate(cfg); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
		if err := checkPair(certPath, keyPath); err != nil {
			return nil, err
		}
		return newConfig(certPath, keyPath, minVer, maxVer), nil
	}

	return nil, ErrNoCertificate
}

// checkPair fails early on a missing or mismatched pair instead of at the
// first handshake.
func checkPair(certPath, keyPath string) error {
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return fmt.Errorf("load certificate: %w", err)
	}
	return nil
}

func newConfig(certPath, keyPath string, minVer, maxVer uint16) *tls.Config {
	// #nosec G402 TLS 1.2 is opt-in through min_version
	return &tls.Config{
		GetCertificate: certificateFunc(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func orDefaultSlice(value, defaultValue []string) []string {
	if len(value) == 0 {
		return defaultValue
	}
	return value
}

// generate writes a self-signed pair and its CA copy into cfg.Dir.
func generate(cfg Config) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	validDays := cfg.AutoGen.ValidDays
	if validDays <= 0 {
		validDays = 365 * 5
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   orDefault(cfg.AutoGen.CommonName, "localhost"),
		Organization: orDefault(cfg.AutoGen.Organization, "tbox"),
		DNSNames:     orDefaultSlice(cfg.AutoGen.DNSNames, []string{"localhost"}),
		IPAddresses:  orDefaultSlice(cfg.AutoGen.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(cfg.Dir, CertFile),
		KeyPath:      filepath.Join(cfg.Dir, KeyFile),
		CACertPath:   filepath.Join(cfg.Dir, CACertFile),
	})
}
