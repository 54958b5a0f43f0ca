package lws

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
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// buildTLSConfig assembles the tls.Config for the HTTPS and secure HTTP/2
// transports from the ServerOptions TLS fields. Sources, in priority order:
// a PKCS#12 archive (PFX), a PEM key/cert file pair, or a generated
// self-signed development certificate when HTTPS was requested with no
// material at all.
//
// When a key/cert file pair is used the returned reloader serves the pair
// through GetCertificate so the certificate watcher can hot-swap it.
func buildTLSConfig(opts *ServerOptions) (*tls.Config, *certReloader, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if opts.SecureProtocol != "" {
		version, err := parseSecureProtocol(opts.SecureProtocol)
		if err != nil {
			return nil, nil, err
		}
		cfg.MinVersion = version
	}

	if opts.Ciphers != "" {
		suites, err := parseCipherSuites(opts.Ciphers)
		if err != nil {
			return nil, nil, err
		}
		cfg.CipherSuites = suites
	}

	switch {
	case opts.PFX != "":
		cert, err := loadPFXCertificate(opts.PFX)
		if err != nil {
			return nil, nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	case opts.Key != "" && opts.Cert != "":
		reloader, err := newCertReloader(opts.Cert, opts.Key)
		if err != nil {
			return nil, nil, err
		}
		cfg.GetCertificate = reloader.GetCertificate
		return cfg, reloader, nil
	default:
		cert, err := generateSelfSignedCertificate([]string{"localhost"})
		if err != nil {
			return nil, nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil, nil
}

// parseSecureProtocol maps an OpenSSL-style method name ("TLSv1_2_method")
// or a bare version name ("TLSv1.3") to a minimum TLS version.
func parseSecureProtocol(name string) (uint16, error) {
	normalized := strings.TrimSuffix(strings.ToUpper(name), "_METHOD")
	normalized = strings.ReplaceAll(normalized, ".", "_")

	switch normalized {
	case "TLSV1", "TLSV1_0":
		return tls.VersionTLS10, nil
	case "TLSV1_1":
		return tls.VersionTLS11, nil
	case "TLSV1_2":
		return tls.VersionTLS12, nil
	case "TLSV1_3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: unknown secure protocol %q", ErrConfigConflict, name)
	}
}

// parseCipherSuites maps a colon or comma separated list of Go cipher suite
// names to their ids. Unknown names fail; a typo silently weakening the
// cipher list would be worse than a startup error.
func parseCipherSuites(list string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		byName[suite.Name] = suite.ID
	}

	var ids []uint16
	for _, name := range strings.FieldsFunc(list, func(r rune) bool { return r == ':' || r == ',' }) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cipher suite %q", ErrConfigConflict, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadPFXCertificate reads a PKCS#12 archive and converts it into a
// tls.Certificate. Archives are expected unencrypted or protected by an
// empty password, matching the development certificates this option is
// normally used with.
func loadPFXCertificate(path string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("reading pfx file: %w", err)
	}

	key, cert, err := pkcs12.Decode(data, "")
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding pfx file %s: %w", path, err)
	}

	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// generateSelfSignedCertificate creates an in-memory certificate for local
// development. Localhost and the loopback addresses are always included so
// the server is reachable without warnings from local tooling that trusts
// the generated root.
func generateSelfSignedCertificate(domains []string) (tls.Certificate, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"lws development certificate"},
			CommonName:   domains[0],
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, domain := range domains {
		if ip := net.ParseIP(domain); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, domain)
		}
	}
	template.DNSNames = append(template.DNSNames, "localhost")
	template.IPAddresses = append(template.IPAddresses, net.ParseIP("127.0.0.1"), net.ParseIP("::1"))

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  privateKey,
	}, nil
}
