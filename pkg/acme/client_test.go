package acme

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config with http-01",
			config: Config{
				DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
				Email:         "admin@natsgate.local",
				Domains:       []string{"natsgate.local"},
				ChallengeType: "http-01",
				RenewBefore:   8 * time.Hour,
				StoragePath:   "/tmp/acme-test",
			},
			wantErr: false,
		},
		{
			name: "valid config with tls-alpn-01",
			config: Config{
				DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
				Email:         "admin@natsgate.local",
				Domains:       []string{"natsgate.local"},
				ChallengeType: "tls-alpn-01",
				RenewBefore:   8 * time.Hour,
				StoragePath:   "/tmp/acme-test",
			},
			wantErr: false,
		},
		{
			name: "missing directory URL",
			config: Config{
				Email:         "admin@natsgate.local",
				Domains:       []string{"natsgate.local"},
				ChallengeType: "http-01",
				StoragePath:   "/tmp/acme-test",
			},
			wantErr: true,
			errMsg:  "directory_url is required",
		},
		{
			name: "missing email",
			config: Config{
				DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
				Domains:       []string{"natsgate.local"},
				ChallengeType: "http-01",
				StoragePath:   "/tmp/acme-test",
			},
			wantErr: true,
			errMsg:  "email is required",
		},
		{
			name: "missing domains",
			config: Config{
				DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
				Email:         "admin@natsgate.local",
				ChallengeType: "http-01",
				StoragePath:   "/tmp/acme-test",
			},
			wantErr: true,
			errMsg:  "at least one domain is required",
		},
		{
			name: "invalid challenge type",
			config: Config{
				DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
				Email:         "admin@natsgate.local",
				Domains:       []string{"natsgate.local"},
				ChallengeType: "dns-01",
				StoragePath:   "/tmp/acme-test",
			},
			wantErr: true,
			errMsg:  "challenge_type must be 'http-01' or 'tls-alpn-01'",
		},
		{
			name: "missing storage path",
			config: Config{
				DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
				Email:         "admin@natsgate.local",
				Domains:       []string{"natsgate.local"},
				ChallengeType: "http-01",
			},
			wantErr: true,
			errMsg:  "storage_path is required",
		},
		{
			name: "default challenge type (empty string)",
			config: Config{
				DirectoryURL: "https://step-ca:9000/acme/acme/directory",
				Email:        "admin@natsgate.local",
				Domains:      []string{"natsgate.local"},
				StoragePath:  "/tmp/acme-test",
			},
			wantErr: false, // Empty string is allowed, defaults to http-01
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	config := Config{
		DirectoryURL: "https://step-ca:9000/acme/acme/directory",
		Email:        "admin@natsgate.local",
		Domains:      []string{"natsgate.local"},
		StoragePath:  "/tmp/acme-test",
		RenewBefore:  0, // Should default to 8h
	}

	err := config.Validate()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, config.RenewBefore, "RenewBefore should default to 8 hours")
}

func TestAccount_GetMethods(t *testing.T) {
	account := &Account{
		Email: "test@example.com",
	}

	assert.Equal(t, "test@example.com", account.GetEmail())
	assert.Nil(t, account.GetRegistration())
	assert.Nil(t, account.GetPrivateKey())
}

func TestNewClient_StorageCreation(t *testing.T) {
	tempDir := t.TempDir()
	storagePath := filepath.Join(tempDir, "acme-storage")

	config := Config{
		DirectoryURL:  "https://step-ca:9000/acme/acme/directory",
		Email:         "test@example.com",
		Domains:       []string{"test.local"},
		ChallengeType: "http-01",
		RenewBefore:   8 * time.Hour,
		StoragePath:   storagePath,
	}

	// Client creation fails without a reachable ACME server, but the
	// storage directory and account key must still be set up first.
	_, err := NewClient(config)

	info, statErr := os.Stat(storagePath)
	require.NoError(t, statErr, "Storage directory should be created")
	assert.True(t, info.IsDir(), "Storage path should be a directory")

	if err != nil {
		t.Logf("Client creation failed as expected (no ACME server): %v", err)
	}
}

func TestRenewCertificateIfNeeded_NoCertificate(t *testing.T) {
	tempDir := t.TempDir()

	client := &Client{
		config: Config{
			StoragePath: tempDir,
			RenewBefore: 8 * time.Hour,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	cert, renewed, err := client.RenewCertificateIfNeeded(context.Background())
	require.NoError(t, err, "Missing certificate is not an error")
	assert.Nil(t, cert, "No certificate should be returned")
	assert.False(t, renewed, "Nothing to renew without an existing certificate")
}
