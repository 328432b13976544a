package tlsconfig

import (
	"crypto/x509"
	"testing"
	"time"
)

func TestLoadGeneratesSelfSignedWhenNoCertConfigured(t *testing.T) {
	cfg, err := Load("", "", "example.test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != 0x0304 { // tls.VersionTLS13
		t.Errorf("expected TLS 1.3 minimum, got %#x", cfg.MinVersion)
	}
	if len(cfg.NextProtos) != 1 || cfg.NextProtos[0] != NextProtoH3 {
		t.Errorf("expected ALPN %q, got %v", NextProtoH3, cfg.NextProtos)
	}

	leaf := cfg.Certificates[0].Leaf
	if leaf == nil {
		t.Fatal("expected parsed leaf certificate")
	}
	if leaf.Subject.CommonName != "example.test" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "example.test")
	}
}

func TestLoadRejectsUnreadableFiles(t *testing.T) {
	if _, err := Load("does-not-exist.pem", "also-missing.pem", "host"); err == nil {
		t.Fatal("expected an error for unreadable cert/key files")
	}
}

func TestGenerateSelfSignedIsValidNow(t *testing.T) {
	cert, err := generateSelfSigned("broadcastd.local", time.Hour)
	if err != nil {
		t.Fatalf("generateSelfSigned: %v", err)
	}
	leaf := cert.Leaf
	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		t.Errorf("cert not valid at current time: NotBefore=%v NotAfter=%v", leaf.NotBefore, leaf.NotAfter)
	}
}

func TestGenerateSelfSignedProducesUniqueCerts(t *testing.T) {
	c1, err := generateSelfSigned("a", time.Hour)
	if err != nil {
		t.Fatalf("generateSelfSigned: %v", err)
	}
	c2, err := generateSelfSigned("a", time.Hour)
	if err != nil {
		t.Fatalf("generateSelfSigned: %v", err)
	}
	if c1.Leaf.SerialNumber.Cmp(c2.Leaf.SerialNumber) == 0 {
		t.Error("expected two calls to produce distinct serial numbers")
	}
}

func TestGenerateSelfSignedVerifiesAgainstItself(t *testing.T) {
	cert, err := generateSelfSigned("localhost", time.Hour)
	if err != nil {
		t.Fatalf("generateSelfSigned: %v", err)
	}
	leaf := cert.Leaf

	if leaf.Issuer.CommonName != leaf.Subject.CommonName {
		t.Errorf("expected self-signed cert: issuer=%q subject=%q", leaf.Issuer.CommonName, leaf.Subject.CommonName)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	if _, err := leaf.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: pool}); err != nil {
		t.Errorf("self-verification failed: %v", err)
	}
}

func TestGenerateSelfSignedFallsBackToDefaultCNWhenHostnameEmpty(t *testing.T) {
	cert, err := generateSelfSigned("", time.Hour)
	if err != nil {
		t.Fatalf("generateSelfSigned: %v", err)
	}
	if cert.Leaf.Subject.CommonName != "broadcastd" {
		t.Errorf("expected default CN broadcastd, got %q", cert.Leaf.Subject.CommonName)
	}
}
