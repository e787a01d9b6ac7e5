// Package tlsutil builds tls.Config values for the gateway listener and for
// outbound NATS connections from security configuration.
package tlsutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/pkg/acme"
	"github.com/c360/natsgate/pkg/security"
)

// LoadServerTLSConfig creates a tls.Config for the HTTP/WebSocket listener.
// Returns (nil, nil) when TLS is disabled.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if cfg.MTLS.Enabled {
		if err := applyMTLSConfig(tlsConfig, cfg.MTLS); err != nil {
			return nil, err
		}
	}

	return tlsConfig, nil
}

// LoadClientTLSConfig creates a tls.Config for outbound connections.
// Always uses the system CA bundle first; CAFiles are additional trusted CAs.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// System pool unavailable, fall back to empty pool
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLSConfig",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}

	tlsConfig.RootCAs = rootCAs

	// Intentional via config; operators know the implications
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.MTLS.Enabled {
		clientCert, err := tls.LoadX509KeyPair(cfg.MTLS.CertFile, cfg.MTLS.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}

// applyMTLSConfig applies client-certificate validation to a server config
func applyMTLSConfig(tlsConfig *tls.Config, mtlsCfg security.ServerMTLSConfig) error {
	clientCAs := x509.NewCertPool()
	for _, caFile := range mtlsCfg.ClientCAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", "applyMTLSConfig",
				fmt.Sprintf("read client CA file %s", caFile))
		}
		if !clientCAs.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil", "applyMTLSConfig",
				fmt.Sprintf("parse client CA certificate from %s", caFile))
		}
	}

	tlsConfig.ClientCAs = clientCAs
	if mtlsCfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(mtlsCfg.AllowedClientCNs) > 0 {
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(verifiedChains, mtlsCfg.AllowedClientCNs)
		}
	}

	return nil
}

// verifyAllowedClientCN checks if client certificate CN is in the whitelist
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	leafCert := chains[0][0]
	for _, allowedCN := range allowedCNs {
		if leafCert.Subject.CommonName == allowedCN {
			return nil
		}
	}

	return fmt.Errorf("client certificate CN '%s' not in allowed list",
		leafCert.Subject.CommonName)
}

// parseTLSVersion converts version string to crypto/tls constant
// Returns tls.VersionTLS12 if empty or invalid
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS12 // Safe default
	}
}

// LoadServerTLSConfigWithACME creates the listener tls.Config with ACME
// automation: certificate obtainment, renewal, and hot-reload. When ACME is
// unavailable it falls back to manual certificates if configured. The
// returned cleanup function stops the renewal loop.
func LoadServerTLSConfigWithACME(
	ctx context.Context, cfg security.ServerTLSConfig, logger *slog.Logger,
) (*tls.Config, func(), error) {
	mode := cfg.Mode
	if mode == "" {
		mode = "manual"
	}

	if mode != "acme" || !cfg.ACME.Enabled {
		tlsConfig, err := LoadServerTLSConfig(cfg)
		return tlsConfig, func() {}, err
	}

	acmeClient, err := initACMEClient(cfg.ACME, logger)
	if err != nil {
		return fallbackToManual(cfg, err)
	}

	// Reuse a stored certificate when still fresh, otherwise obtain one
	cert, _, err := acmeClient.RenewCertificateIfNeeded(ctx)
	if err != nil || cert == nil {
		cert, err = acmeClient.ObtainCertificate(ctx)
		if err != nil {
			return fallbackToManual(cfg, errors.WrapTransient(err,
				"tlsutil", "LoadServerTLSConfigWithACME", "obtain ACME certificate"))
		}
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if cfg.MTLS.Enabled {
		if err := applyMTLSConfig(tlsConfig, cfg.MTLS); err != nil {
			return nil, nil, err
		}
	}

	// Background renewal with hot-reload
	renewalCtx, cancel := context.WithCancel(ctx)
	renewalDone := make(chan struct{})

	go func() {
		defer close(renewalDone)
		_ = acmeClient.StartRenewalLoop(renewalCtx, 1*time.Hour,
			func(newCert *tls.Certificate) {
				tlsConfig.Certificates = []tls.Certificate{*newCert}
			})
	}()

	cleanup := func() {
		cancel()
		<-renewalDone
	}

	return tlsConfig, cleanup, nil
}

// fallbackToManual tries static certificates after an ACME failure.
func fallbackToManual(cfg security.ServerTLSConfig, acmeErr error) (*tls.Config, func(), error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, nil, acmeErr
	}

	tlsConfig, err := LoadServerTLSConfig(cfg)
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "tlsutil", "fallbackToManual",
			"fallback to manual TLS after ACME failure")
	}
	return tlsConfig, func() {}, nil
}

// initACMEClient creates an ACME client from security config
func initACMEClient(cfg security.ACMEConfig, logger *slog.Logger) (*acme.Client, error) {
	renewBefore, err := time.ParseDuration(cfg.RenewBefore)
	if err != nil {
		renewBefore = 8 * time.Hour // Default
	}

	return acme.NewClient(acme.Config{
		DirectoryURL:  cfg.DirectoryURL,
		Email:         cfg.Email,
		Domains:       cfg.Domains,
		ChallengeType: cfg.ChallengeType,
		RenewBefore:   renewBefore,
		StoragePath:   cfg.StoragePath,
		CABundle:      cfg.CABundle,
		Logger:        logger,
	})
}
