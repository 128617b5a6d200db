// Package tls is the TLS certificate adapter (C3). Development issues a
// local self-signed cert per FQDN and caches it for 365 days; production
// drives an ACME client and blocks on the issued cert appearing on disk,
// up to a timeout.
package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
)

const selfSignedValidity = 365 * 24 * time.Hour

// Adapter issues and caches certificates keyed by FQDN.
type Adapter struct {
	mu         sync.Mutex
	certDir    string
	production bool

	acmeClient *lego.Client
	acmeUser   *acmeUser
	acmeEmail  string
}

// New returns a development adapter (self-signed, cached under certDir).
func New(certDir string) *Adapter {
	return &Adapter{certDir: certDir, production: false}
}

// NewProduction returns an adapter that drives ACME for real issuance,
// registered under contactEmail.
func NewProduction(certDir, contactEmail string) (*Adapter, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, apierr.Fatal("generate acme account key", err)
	}
	user := &acmeUser{email: contactEmail, key: key}

	cfg := lego.NewConfig(user)
	cfg.CADirURL = lego.LEDirectoryProduction
	cfg.Certificate.KeyType = certcrypto.RSA2048

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, apierr.Transient("create acme client", err)
	}
	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, apierr.Transient("register acme account", err)
	}
	user.registration = reg

	return &Adapter{
		certDir:    certDir,
		production: true,
		acmeClient: client,
		acmeUser:   user,
		acmeEmail:  contactEmail,
	}, nil
}

type acmeUser struct {
	email        string
	registration *registration.Resource
	key          *ecdsa.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

func (a *Adapter) certPath(fqdn string) string { return filepath.Join(a.certDir, fqdn+".crt") }
func (a *Adapter) keyPath(fqdn string) string  { return filepath.Join(a.certDir, fqdn+".key") }

// CheckExists reports whether a valid, unexpired certificate is already
// cached for fqdn.
func (a *Adapter) CheckExists(fqdn string) bool {
	data, err := os.ReadFile(a.certPath(fqdn))
	if err != nil {
		return false
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	return time.Now().Before(cert.NotAfter)
}

// Issue returns the cached certificate for fqdn if still valid, or issues
// a new one. kind distinguishes the caller's naming convention (team,
// sandbox, workspace-app) purely for logging/labeling; it does not affect
// issuance.
func (a *Adapter) Issue(ctx context.Context, kind, fqdn string) (*types.TLSCertificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.CheckExists(fqdn) {
		return a.load(fqdn)
	}

	if err := os.MkdirAll(a.certDir, 0700); err != nil {
		return nil, apierr.Transient("create cert directory", err)
	}

	if a.production {
		return a.issueACME(ctx, fqdn)
	}
	return a.issueSelfSigned(fqdn)
}

func (a *Adapter) issueSelfSigned(fqdn string) (*types.TLSCertificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, apierr.Fatal("generate cert key", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, apierr.Fatal("generate cert serial", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"kanban control plane (dev)"}, CommonName: fqdn},
		NotBefore:    now,
		NotAfter:     now.Add(selfSignedValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{fqdn},
	}
	if ip := net.ParseIP(fqdn); ip != nil {
		template.IPAddresses = []net.IP{ip}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, apierr.Fatal("create self-signed cert", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.WriteFile(a.certPath(fqdn), certPEM, 0600); err != nil {
		return nil, apierr.Transient("write cert", err)
	}
	if err := os.WriteFile(a.keyPath(fqdn), keyPEM, 0600); err != nil {
		return nil, apierr.Transient("write key", err)
	}

	return &types.TLSCertificate{
		Name: fqdn, Hosts: []string{fqdn}, CertPEM: certPEM, KeyPEM: keyPEM,
		Issuer: "self-signed", NotBefore: now, NotAfter: now.Add(selfSignedValidity), AutoRenew: false,
	}, nil
}

// issueACME requests a certificate via the configured ACME client and
// then blocks on the resulting file appearing on disk, up to a 5-minute
// timeout.
func (a *Adapter) issueACME(ctx context.Context, fqdn string) (*types.TLSCertificate, error) {
	request := certificate.ObtainRequest{Domains: []string{fqdn}, Bundle: true}

	resultCh := make(chan error, 1)
	go func() {
		cert, err := a.acmeClient.Certificate.Obtain(request)
		if err != nil {
			resultCh <- err
			return
		}
		if err := os.WriteFile(a.certPath(fqdn), cert.Certificate, 0600); err != nil {
			resultCh <- err
			return
		}
		if err := os.WriteFile(a.keyPath(fqdn), cert.PrivateKey, 0600); err != nil {
			resultCh <- err
			return
		}
		resultCh <- nil
	}()

	deadline := time.NewTimer(5 * time.Minute)
	defer deadline.Stop()

	for {
		select {
		case err := <-resultCh:
			if err != nil {
				return nil, apierr.Transient(fmt.Sprintf("acme issuance for %s", fqdn), err)
			}
		case <-ctx.Done():
			return nil, apierr.Transient("acme issuance cancelled", ctx.Err())
		case <-deadline.C:
			return nil, apierr.Transient(fmt.Sprintf("timed out waiting for certificate file for %s", fqdn), nil)
		case <-time.After(2 * time.Second):
		}
		if a.CheckExists(fqdn) {
			return a.load(fqdn)
		}
	}
}

func (a *Adapter) load(fqdn string) (*types.TLSCertificate, error) {
	certPEM, err := os.ReadFile(a.certPath(fqdn))
	if err != nil {
		return nil, apierr.Transient("read cached cert", err)
	}
	keyPEM, err := os.ReadFile(a.keyPath(fqdn))
	if err != nil {
		return nil, apierr.Transient("read cached key", err)
	}
	block, _ := pem.Decode(certPEM)
	var notBefore, notAfter time.Time
	issuer := "self-signed"
	if block != nil {
		if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
			notBefore, notAfter = cert.NotBefore, cert.NotAfter
			if a.production {
				issuer = cert.Issuer.CommonName
			}
		}
	}
	return &types.TLSCertificate{
		Name: fqdn, Hosts: []string{fqdn}, CertPEM: certPEM, KeyPEM: keyPEM,
		Issuer: issuer, NotBefore: notBefore, NotAfter: notAfter, AutoRenew: a.production,
	}, nil
}

// Revoke removes the cached certificate files for fqdn.
func (a *Adapter) Revoke(fqdn string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = os.Remove(a.certPath(fqdn))
	_ = os.Remove(a.keyPath(fqdn))
	return nil
}
