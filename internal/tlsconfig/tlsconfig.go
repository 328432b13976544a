// Package tlsconfig resolves the TLS material the HTTP/3 listener needs.
// TLS provisioning is an external collaborator per the system's scope, so
// the primary path loads an operator-provided PEM chain and key; a
// self-signed fallback (grounded on the teacher's certificate generator) is
// offered only for local development when no cert/key is configured.
package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// NextProtoH3 is the ALPN token HTTP/3 negotiates.
const NextProtoH3 = "h3"

// Load returns a *tls.Config for the given cert/key pair, or a freshly
// generated self-signed certificate if both are empty. It never mixes the
// two: a partially configured pair is a *config.ConfigError the caller
// should have already rejected during config validation.
func Load(certFile, keyFile, hostname string) (*tls.Config, error) {
	var cert tls.Certificate
	var err error

	if certFile != "" {
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load keypair: %w", err)
		}
	} else {
		cert, err = generateSelfSigned(hostname, 14*24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: generate self-signed cert: %w", err)
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{NextProtoH3},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// generateSelfSigned creates an ECDSA P256 self-signed certificate, for
// local development only. It is not suitable for a public deployment.
func generateSelfSigned(hostname string, validity time.Duration) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	cn := "broadcastd"
	if hostname != "" {
		cn = hostname
	}
	sans := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		sans = append(sans, hostname)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}
