package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natsgate/pkg/security"
)

// writeCertPair writes a PEM cert/key pair under dir and returns the paths.
func writeCertPair(t *testing.T, dir, prefix string, certPEM, keyPEM []byte) (certFile, keyFile string) {
	t.Helper()

	certFile = filepath.Join(dir, prefix+"-cert.pem")
	keyFile = filepath.Join(dir, prefix+"-key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	return certFile, keyFile
}

// startMTLSServer builds a server tls.Config from cfg and serves handler over it.
func startMTLSServer(t *testing.T, cfg security.ServerTLSConfig, handler http.Handler) *httptest.Server {
	t.Helper()

	serverTLSConfig, err := LoadServerTLSConfig(cfg)
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(handler)
	server.TLS = serverTLSConfig
	server.StartTLS()
	t.Cleanup(server.Close)
	return server
}

func mtlsHTTPClient(t *testing.T, cfg security.ClientTLSConfig) *http.Client {
	t.Helper()

	clientTLSConfig, err := LoadClientTLSConfig(cfg)
	require.NoError(t, err)

	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: clientTLSConfig,
		},
	}
}

func TestMTLSHandshake_ServerRequiresClientCert(t *testing.T) {
	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	serverCertFile, serverKeyFile := writeCertPair(t, tmpDir, "server", serverCertPEM, serverKeyPEM)

	// Self-signed client cert doubles as its own CA
	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "test-client")
	clientCertFile, clientKeyFile := writeCertPair(t, tmpDir, "client", clientCertPEM, clientKeyPEM)
	clientCAFile := filepath.Join(tmpDir, "client-ca.pem")
	require.NoError(t, os.WriteFile(clientCAFile, clientCertPEM, 0644))

	server := startMTLSServer(t, security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCAFile},
			RequireClientCert: true,
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "No client certificate", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	httpClient := mtlsHTTPClient(t, security.ClientTLSConfig{
		InsecureSkipVerify: true, // Skip server cert validation for test
		MTLS: security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: clientCertFile,
			KeyFile:  clientKeyFile,
		},
	})

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestMTLSHandshake_ServerRequiresClientCert_NoClientCert(t *testing.T) {
	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	serverCertFile, serverKeyFile := writeCertPair(t, tmpDir, "server", serverCertPEM, serverKeyPEM)

	clientCertPEM, _ := generateTestCertWithCN(t, "test-client")
	clientCAFile := filepath.Join(tmpDir, "client-ca.pem")
	require.NoError(t, os.WriteFile(clientCAFile, clientCertPEM, 0644))

	server := startMTLSServer(t, security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCAFile},
			RequireClientCert: true,
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Client presents no certificate, the handshake must fail
	httpClient := mtlsHTTPClient(t, security.ClientTLSConfig{
		InsecureSkipVerify: true,
	})

	_, err := httpClient.Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
}

func TestMTLSHandshake_CNWhitelist_Allowed(t *testing.T) {
	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	serverCertFile, serverKeyFile := writeCertPair(t, tmpDir, "server", serverCertPEM, serverKeyPEM)

	clientCN := "authorized-client"
	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, clientCN)
	clientCertFile, clientKeyFile := writeCertPair(t, tmpDir, "client", clientCertPEM, clientKeyPEM)
	clientCAFile := filepath.Join(tmpDir, "client-ca.pem")
	require.NoError(t, os.WriteFile(clientCAFile, clientCertPEM, 0644))

	server := startMTLSServer(t, security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCAFile},
			RequireClientCert: true,
			AllowedClientCNs:  []string{clientCN, "another-allowed-client"},
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	httpClient := mtlsHTTPClient(t, security.ClientTLSConfig{
		InsecureSkipVerify: true,
		MTLS: security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: clientCertFile,
			KeyFile:  clientKeyFile,
		},
	})

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMTLSHandshake_CNWhitelist_Rejected(t *testing.T) {
	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	serverCertFile, serverKeyFile := writeCertPair(t, tmpDir, "server", serverCertPEM, serverKeyPEM)

	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "unauthorized-client")
	clientCertFile, clientKeyFile := writeCertPair(t, tmpDir, "client", clientCertPEM, clientKeyPEM)
	clientCAFile := filepath.Join(tmpDir, "client-ca.pem")
	require.NoError(t, os.WriteFile(clientCAFile, clientCertPEM, 0644))

	server := startMTLSServer(t, security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCAFile},
			RequireClientCert: true,
			AllowedClientCNs:  []string{"authorized-client", "another-allowed-client"},
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	httpClient := mtlsHTTPClient(t, security.ClientTLSConfig{
		InsecureSkipVerify: true,
		MTLS: security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: clientCertFile,
			KeyFile:  clientKeyFile,
		},
	})

	// CN is not whitelisted, the handshake must fail
	_, err := httpClient.Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
}

func TestMTLSHandshake_OptionalClientCert(t *testing.T) {
	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	serverCertFile, serverKeyFile := writeCertPair(t, tmpDir, "server", serverCertPEM, serverKeyPEM)

	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "test-client")
	clientCertFile, clientKeyFile := writeCertPair(t, tmpDir, "client", clientCertPEM, clientKeyPEM)
	clientCAFile := filepath.Join(tmpDir, "client-ca.pem")
	require.NoError(t, os.WriteFile(clientCAFile, clientCertPEM, 0644))

	server := startMTLSServer(t, security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCAFile},
			RequireClientCert: false,
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			w.Header().Set("X-Client-Cert", "present")
		} else {
			w.Header().Set("X-Client-Cert", "absent")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("with client cert", func(t *testing.T) {
		httpClient := mtlsHTTPClient(t, security.ClientTLSConfig{
			InsecureSkipVerify: true,
			MTLS: security.ClientMTLSConfig{
				Enabled:  true,
				CertFile: clientCertFile,
				KeyFile:  clientKeyFile,
			},
		})

		resp, err := httpClient.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "present", resp.Header.Get("X-Client-Cert"))
	})

	t.Run("without client cert", func(t *testing.T) {
		httpClient := mtlsHTTPClient(t, security.ClientTLSConfig{
			InsecureSkipVerify: true,
		})

		resp, err := httpClient.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "absent", resp.Header.Get("X-Client-Cert"))
	})
}

func TestMTLSHandshake_PlainTLSWithoutMTLS(t *testing.T) {
	tmpDir := t.TempDir()

	serverCertPEM, serverKeyPEM := generateTestCert(t)
	serverCertFile, serverKeyFile := writeCertPair(t, tmpDir, "server", serverCertPEM, serverKeyPEM)

	serverCfg := security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
	}

	serverTLSConfig, err := LoadServerTLSConfig(serverCfg)
	require.NoError(t, err)
	assert.Equal(t, tls.NoClientCert, serverTLSConfig.ClientAuth)

	server := startMTLSServer(t, serverCfg, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestClientCertLoading(t *testing.T) {
	tmpDir := t.TempDir()

	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "test-client")
	clientCertFile, clientKeyFile := writeCertPair(t, tmpDir, "client", clientCertPEM, clientKeyPEM)

	clientTLSConfig, err := LoadClientTLSConfig(security.ClientTLSConfig{
		MTLS: security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: clientCertFile,
			KeyFile:  clientKeyFile,
		},
	})
	require.NoError(t, err)

	require.Len(t, clientTLSConfig.Certificates, 1)
	assert.NotEmpty(t, clientTLSConfig.Certificates[0].Certificate)

	block, _ := pem.Decode(clientCertPEM)
	require.NotNil(t, block)

	x509Cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "test-client", x509Cert.Subject.CommonName)
}
