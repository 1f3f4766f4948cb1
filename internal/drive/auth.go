package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DriveScope grants full access to files the service account can see,
// including shared drives it is a member of.
const DriveScope = "https://www.googleapis.com/auth/drive"

// ErrNoCredentials is returned when neither an inline key nor a key file
// was configured.
var ErrNoCredentials = errors.New("drive: no service account credentials configured")

// LoadServiceAccountKey returns the service account key JSON. An inline key
// (usually from the environment) wins over the key file path.
func LoadServiceAccountKey(path, inline string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}

	if path == "" {
		return nil, ErrNoCredentials
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("drive: reading credentials file: %w", err)
	}

	return data, nil
}

// ServiceAccountTokenSource builds a TokenSource that mints Drive-scoped
// access tokens from a service account key via the JWT bearer grant.
// Tokens are cached and refreshed shortly before expiry.
//
// The returned TokenSource binds ctx to the underlying oauth2 token source.
// ctx must outlive the TokenSource.
func ServiceAccountTokenSource(ctx context.Context, keyJSON []byte, logger *slog.Logger) (TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	keyJSON, err := normalizePrivateKey(keyJSON)
	if err != nil {
		return nil, err
	}

	cfg, err := google.JWTConfigFromJSON(keyJSON, DriveScope)
	if err != nil {
		return nil, fmt.Errorf("drive: parsing service account key: %w", err)
	}

	logger.Info("using service account credentials",
		slog.String("email", cfg.Email),
	)

	src := oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))

	return &tokenBridge{src: src, logger: logger}, nil
}

// normalizePrivateKey turns literal "\n" sequences in private_key into real
// newlines. Keys pasted into environment variables often arrive escaped
// twice, which the PEM decoder rejects.
func normalizePrivateKey(keyJSON []byte) ([]byte, error) {
	var raw map[string]any
	if err := json.Unmarshal(keyJSON, &raw); err != nil {
		return nil, fmt.Errorf("drive: service account key is not valid JSON: %w", err)
	}

	pk, ok := raw["private_key"].(string)
	if !ok || !strings.Contains(pk, `\n`) {
		return keyJSON, nil
	}

	raw["private_key"] = strings.ReplaceAll(pk, `\n`, "\n")

	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("drive: re-encoding service account key: %w", err)
	}

	return out, nil
}

// StaticToken is a TokenSource that always returns the same token. Useful
// against emulators and in tests.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// tokenBridge adapts oauth2.TokenSource to drive.TokenSource.
// Logs every token acquisition so refresh activity is visible.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("drive: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
