// Package tlsconfig provides helpers for building the mutually-authenticated
// TLS configuration socketbroker's client and server endpoints require.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// SSL/TLS Protocol Versions, kept for parity with version-profile helpers.
const (
	VersionTLS10 uint16 = tls.VersionTLS10
	VersionTLS11 uint16 = tls.VersionTLS11
	VersionTLS12 uint16 = tls.VersionTLS12
	VersionTLS13 uint16 = tls.VersionTLS13
)

// VersionProfile bounds the TLS version range offered/accepted.
type VersionProfile struct {
	Min         uint16
	Max         uint16
	Description string
}

// ProfileCompatible is socketbroker's default: TLS 1.0 through 1.3, the
// widest range that still excludes SSL outright.
var ProfileCompatible = VersionProfile{
	Min:         VersionTLS10,
	Max:         VersionTLS13,
	Description: "TLS 1.0+ — matches the historical sslv23/no_sslv2 asio posture",
}

// ProfileSecure restricts to TLS 1.2+, for callers who don't need the
// historical compatibility floor.
var ProfileSecure = VersionProfile{
	Min:         VersionTLS12,
	Max:         VersionTLS13,
	Description: "TLS 1.2+ — secure and widely compatible",
}

// ApplyVersionProfile applies a VersionProfile's bounds to config.
func ApplyVersionProfile(config *tls.Config, profile VersionProfile) {
	config.MinVersion = profile.Min
	config.MaxVersion = profile.Max
}

// GetVersionName returns a human-readable name for a TLS version constant.
func GetVersionName(version uint16) string {
	switch version {
	case VersionTLS10:
		return "TLS 1.0"
	case VersionTLS11:
		return "TLS 1.1"
	case VersionTLS12:
		return "TLS 1.2"
	case VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// Recommended cipher suites, ordered by security strength (strongest first).
var (
	// CipherSuitesTLS13 exists for documentation only — TLS 1.3 picks its
	// own suites and ignores tls.Config.CipherSuites entirely.
	CipherSuitesTLS13 = []uint16{
		tls.TLS_AES_128_GCM_SHA256,
		tls.TLS_AES_256_GCM_SHA384,
		tls.TLS_CHACHA20_POLY1305_SHA256,
	}

	// CipherSuitesTLS12Secure is ECDHE with AEAD only.
	CipherSuitesTLS12Secure = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}

	// CipherSuitesTLS12Compatible adds CBC mode for older peers — this is
	// the range ProfileCompatible's floor (TLS 1.0) resolves to.
	CipherSuitesTLS12Compatible = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	}

	// CipherSuitesLegacy covers SSL 3.0 / TLS 1.0 peers with no ECDHE
	// support. Some of these are insecure; only reached below VersionTLS10.
	CipherSuitesLegacy = []uint16{
		tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_RSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
	}
)

// ApplyCipherSuites sets config.CipherSuites to the recommended suite list
// for minVersion. Has no effect on a connection that ultimately negotiates
// TLS 1.3, which ignores CipherSuites and picks its own.
func ApplyCipherSuites(config *tls.Config, minVersion uint16) {
	switch {
	case minVersion >= VersionTLS13:
		config.CipherSuites = nil
	case minVersion >= VersionTLS12:
		config.CipherSuites = CipherSuitesTLS12Secure
	case minVersion >= VersionTLS10:
		config.CipherSuites = CipherSuitesTLS12Compatible
	default:
		config.CipherSuites = CipherSuitesLegacy
	}
}

// Paths names the three PEM files an endpoint is configured with: its own
// certificate and key, and the CA bundle used to verify the peer.
// Provisioning those files is the caller's concern; this package only
// consumes the paths.
type Paths struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

func loadCA(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read CA file %s: %w", caFile, err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(pem); !ok {
		return nil, fmt.Errorf("tlsconfig: no certificates parsed from CA file %s", caFile)
	}
	return pool, nil
}

func loadKeyPair(p Paths) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsconfig: load key pair (%s, %s): %w", p.CertFile, p.KeyFile, err)
	}
	return cert, nil
}

// ClientMutualConfig builds the *tls.Config a ClientEndpoint dials with.
// It loads the client's own certificate/key (presented during the mutual
// handshake) and the CA bundle used to verify the server's certificate, and
// requires the server to present one, failing closed if it doesn't.
func ClientMutualConfig(p Paths, serverName string) (*tls.Config, error) {
	cert, err := loadKeyPair(p)
	if err != nil {
		return nil, err
	}
	roots, err := loadCA(p.CAFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		ServerName:   serverName,
	}
	ApplyVersionProfile(cfg, ProfileCompatible)
	ApplyCipherSuites(cfg, ProfileCompatible.Min)
	return cfg, nil
}

// ServerMutualConfig builds the *tls.Config a ServerEndpoint listens with.
// ClientAuth is tls.RequireAndVerifyClientCert: the server refuses the
// handshake outright if the connecting peer presents no certificate.
func ServerMutualConfig(p Paths) (*tls.Config, error) {
	cert, err := loadKeyPair(p)
	if err != nil {
		return nil, err
	}
	roots, err := loadCA(p.CAFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    roots,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	ApplyVersionProfile(cfg, ProfileCompatible)
	ApplyCipherSuites(cfg, ProfileCompatible.Min)
	return cfg, nil
}
