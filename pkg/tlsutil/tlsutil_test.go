package tlsutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natsgate/pkg/security"
)

// generateTestCert creates a self-signed certificate for testing
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return certPEM, keyPEM
}

// setupTestFiles creates temporary cert/key files for testing
func setupTestFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()

	tmpDir := t.TempDir()

	certPEM, keyPEM := generateTestCert(t)

	certFile = filepath.Join(tmpDir, "cert.pem")
	keyFile = filepath.Join(tmpDir, "key.pem")
	caFile = filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644)) // Use same cert as CA for testing

	return certFile, keyFile, caFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	tests := []struct {
		name    string
		cfg     security.ServerTLSConfig
		wantNil bool
		wantErr bool
		checkFn func(*testing.T, *tls.Config)
	}{
		{
			name: "disabled",
			cfg: security.ServerTLSConfig{
				Enabled: false,
			},
			wantNil: true,
		},
		{
			name: "enabled with valid cert",
			cfg: security.ServerTLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				MinVersion: "1.3",
			},
		},
		{
			name: "enabled with TLS 1.2",
			cfg: security.ServerTLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				MinVersion: "1.2",
			},
		},
		{
			name: "missing cert file",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: "/nonexistent/cert.pem",
				KeyFile:  keyFile,
			},
			wantNil: true,
			wantErr: true,
		},
		{
			name: "missing key file",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  "/nonexistent/key.pem",
			},
			wantNil: true,
			wantErr: true,
		},
		{
			name: "mtls disabled leaves client auth off",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  keyFile,
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)
				assert.Nil(t, tlsCfg.ClientCAs)
			},
		},
		{
			name: "mtls required client cert",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  keyFile,
				MTLS: security.ServerMTLSConfig{
					Enabled:           true,
					ClientCAFiles:     []string{caFile},
					RequireClientCert: true,
				},
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.Equal(t, tls.RequireAndVerifyClientCert, tlsCfg.ClientAuth)
				assert.NotNil(t, tlsCfg.ClientCAs)
			},
		},
		{
			name: "mtls optional client cert",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  keyFile,
				MTLS: security.ServerMTLSConfig{
					Enabled:       true,
					ClientCAFiles: []string{caFile},
				},
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.Equal(t, tls.VerifyClientCertIfGiven, tlsCfg.ClientAuth)
				assert.NotNil(t, tlsCfg.ClientCAs)
			},
		},
		{
			name: "mtls with CN whitelist",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  keyFile,
				MTLS: security.ServerMTLSConfig{
					Enabled:           true,
					ClientCAFiles:     []string{caFile},
					RequireClientCert: true,
					AllowedClientCNs:  []string{"allowed-client", "another-client"},
				},
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.VerifyPeerCertificate)
			},
		},
		{
			name: "mtls missing client CA",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  keyFile,
				MTLS: security.ServerMTLSConfig{
					Enabled:           true,
					ClientCAFiles:     []string{"/nonexistent/ca.pem"},
					RequireClientCert: true,
				},
			},
			wantNil: true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadServerTLSConfig(tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)

			if tt.wantNil {
				assert.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			assert.NotEmpty(t, got.Certificates)

			expectedVersion := parseTLSVersion(tt.cfg.MinVersion)
			assert.Equal(t, expectedVersion, got.MinVersion)

			if tt.checkFn != nil {
				tt.checkFn(t, got)
			}
		})
	}
}

func TestLoadClientTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	tests := []struct {
		name    string
		cfg     security.ClientTLSConfig
		wantErr bool
		checkFn func(*testing.T, *tls.Config)
	}{
		{
			name: "default config with system CA pool",
			cfg:  security.ClientTLSConfig{},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.RootCAs)
				assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
				assert.False(t, tlsCfg.InsecureSkipVerify)
			},
		},
		{
			name: "with additional CA file",
			cfg: security.ClientTLSConfig{
				CAFiles: []string{caFile},
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.RootCAs)
			},
		},
		{
			name: "with TLS 1.3",
			cfg: security.ClientTLSConfig{
				MinVersion: "1.3",
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.Equal(t, uint16(tls.VersionTLS13), tlsCfg.MinVersion)
			},
		},
		{
			name: "with InsecureSkipVerify",
			cfg: security.ClientTLSConfig{
				InsecureSkipVerify: true,
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.True(t, tlsCfg.InsecureSkipVerify)
			},
		},
		{
			name: "missing CA file",
			cfg: security.ClientTLSConfig{
				CAFiles: []string{"/nonexistent/ca.pem"},
			},
			wantErr: true,
		},
		{
			name: "multiple CA files",
			cfg: security.ClientTLSConfig{
				CAFiles: []string{caFile, caFile}, // Same file twice is fine for testing
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.RootCAs)
			},
		},
		{
			name: "mtls disabled leaves certificates empty",
			cfg: security.ClientTLSConfig{
				CAFiles: []string{caFile},
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				assert.Empty(t, tlsCfg.Certificates)
			},
		},
		{
			name: "mtls enabled loads client certificate",
			cfg: security.ClientTLSConfig{
				CAFiles: []string{caFile},
				MTLS: security.ClientMTLSConfig{
					Enabled:  true,
					CertFile: certFile,
					KeyFile:  keyFile,
				},
			},
			checkFn: func(t *testing.T, tlsCfg *tls.Config) {
				require.Len(t, tlsCfg.Certificates, 1)
				assert.NotEmpty(t, tlsCfg.Certificates[0].Certificate)
			},
		},
		{
			name: "mtls missing cert file",
			cfg: security.ClientTLSConfig{
				MTLS: security.ClientMTLSConfig{
					Enabled:  true,
					CertFile: "/nonexistent/cert.pem",
					KeyFile:  keyFile,
				},
			},
			wantErr: true,
		},
		{
			name: "mtls missing key file",
			cfg: security.ClientTLSConfig{
				MTLS: security.ClientMTLSConfig{
					Enabled:  true,
					CertFile: certFile,
					KeyFile:  "/nonexistent/key.pem",
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadClientTLSConfig(tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)

			if tt.checkFn != nil {
				tt.checkFn(t, got)
			}
		})
	}
}

func TestParseTLSVersion(t *testing.T) {
	tests := []struct {
		version string
		want    uint16
	}{
		{"1.3", tls.VersionTLS13},
		{"1.2", tls.VersionTLS12},
		{"", tls.VersionTLS12},        // Default
		{"invalid", tls.VersionTLS12}, // Default fallback
		{"1.1", tls.VersionTLS12},     // Old version defaults to 1.2
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got := parseTLSVersion(tt.version)
			assert.Equal(t, tt.want, got)
		})
	}
}

// generateTestCertWithCN creates a self-signed certificate with a specific CN
func generateTestCertWithCN(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   cn,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return certPEM, keyPEM
}

func TestVerifyAllowedClientCN_Allowed(t *testing.T) {
	certPEM, _ := generateTestCertWithCN(t, "allowed-client")

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)

	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	chains := [][]*x509.Certificate{
		{cert},
	}

	allowedCNs := []string{"allowed-client", "another-client"}

	err = verifyAllowedClientCN(chains, allowedCNs)
	assert.NoError(t, err)
}

func TestVerifyAllowedClientCN_NotAllowed(t *testing.T) {
	certPEM, _ := generateTestCertWithCN(t, "unauthorized-client")

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)

	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	chains := [][]*x509.Certificate{
		{cert},
	}

	allowedCNs := []string{"allowed-client", "another-client"}

	err = verifyAllowedClientCN(chains, allowedCNs)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowed list")
}

func TestVerifyAllowedClientCN_NoChains(t *testing.T) {
	chains := [][]*x509.Certificate{}
	allowedCNs := []string{"allowed-client"}

	err := verifyAllowedClientCN(chains, allowedCNs)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no verified certificate chains")
}

func TestLoadServerTLSConfigWithACME_ManualMode(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	cfg := security.ServerTLSConfig{
		Enabled:  true,
		Mode:     "manual",
		CertFile: certFile,
		KeyFile:  keyFile,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tlsCfg, cleanup, err := LoadServerTLSConfigWithACME(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	require.NotNil(t, cleanup, "Cleanup must always be safe to call")
	cleanup()
	assert.Len(t, tlsCfg.Certificates, 1)
}

func TestLoadServerTLSConfigWithACME_FallbackToManual(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)
	storagePath := filepath.Join(t.TempDir(), "acme-storage")

	// 127.0.0.1:1 refuses connections immediately, so the ACME client
	// fails fast and the loader falls back to the manual cert files.
	cfg := security.ServerTLSConfig{
		Enabled:  true,
		Mode:     "acme",
		CertFile: certFile,
		KeyFile:  keyFile,
		ACME: security.ACMEConfig{
			Enabled:       true,
			DirectoryURL:  "https://127.0.0.1:1/acme/acme/directory",
			Email:         "admin@natsgate.local",
			Domains:       []string{"natsgate.local"},
			ChallengeType: "http-01",
			StoragePath:   storagePath,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tlsCfg, cleanup, err := LoadServerTLSConfigWithACME(context.Background(), cfg, logger)
	require.NoError(t, err, "ACME failure with manual certs available should fall back")
	require.NotNil(t, tlsCfg)
	require.NotNil(t, cleanup)
	cleanup()
	assert.Len(t, tlsCfg.Certificates, 1)
}

func TestLoadServerTLSConfigWithACME_FallbackUnavailable(t *testing.T) {
	storagePath := filepath.Join(t.TempDir(), "acme-storage")

	cfg := security.ServerTLSConfig{
		Enabled: true,
		Mode:    "acme",
		ACME: security.ACMEConfig{
			Enabled:       true,
			DirectoryURL:  "https://127.0.0.1:1/acme/acme/directory",
			Email:         "admin@natsgate.local",
			Domains:       []string{"natsgate.local"},
			ChallengeType: "http-01",
			StoragePath:   storagePath,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, _, err := LoadServerTLSConfigWithACME(context.Background(), cfg, logger)
	require.Error(t, err, "No manual cert files means nothing to fall back to")
}
