// Package security provides gateway-wide security configuration types
package security

// Config holds gateway-wide security configuration
type Config struct {
	// AuthToken, when set, is required as a bearer token on consumer
	// management mutations (create, reset, delete). Read surfaces stay open.
	AuthToken string `json:"auth_token,omitempty"`

	TLS TLSConfig `json:"tls,omitempty"`
}

// AuthRequired reports whether mutating endpoints demand a bearer token.
func (c Config) AuthRequired() bool {
	return c.AuthToken != ""
}

// TLSConfig holds TLS configuration for the HTTP/WebSocket listener and for
// outbound connections (NATS).
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty"`
}

// ACMEConfig holds ACME client configuration for automated certificate management
type ACMEConfig struct {
	Enabled       bool     `json:"enabled"`
	DirectoryURL  string   `json:"directory_url,omitempty"`  // ACME directory endpoint
	Email         string   `json:"email,omitempty"`          // Contact email
	Domains       []string `json:"domains,omitempty"`        // Domains for certificate
	ChallengeType string   `json:"challenge_type,omitempty"` // "http-01" or "tls-alpn-01"
	RenewBefore   string   `json:"renew_before,omitempty"`   // Duration string (e.g., "8h")
	StoragePath   string   `json:"storage_path,omitempty"`   // Certificate storage path
	CABundle      string   `json:"ca_bundle,omitempty"`      // Optional: CA cert for private ACME
}

// ServerMTLSConfig holds mTLS configuration for the listener (client certificate validation)
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`     // CA certs to trust for client validation
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // true = require, false = optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`  // Optional CN whitelist
}

// ServerTLSConfig holds TLS configuration for the HTTP/WebSocket listener
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	Mode       string `json:"mode,omitempty"` // "manual" (default) or "acme"
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"

	// ACME mode
	ACME ACMEConfig `json:"acme,omitempty"`

	// mTLS support (both modes)
	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ClientMTLSConfig holds mTLS configuration for outbound connections
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"` // Client certificate
	KeyFile  string `json:"key_file,omitempty"`  // Client private key
}

// ClientTLSConfig holds TLS configuration for outbound connections (NATS).
// Always uses system CA bundle first, CAFiles are ADDITIONAL trusted CAs
type ClientTLSConfig struct {
	Enabled            bool     `json:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty"`

	// mTLS support
	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}
