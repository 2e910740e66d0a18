package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// CredentialsFileName is the file kept under the user config directory.
const CredentialsFileName = "credentials.toml"

// ClientConfig captures what the staff client needs to reach a remote backend.
type ClientConfig struct {
	URL             string
	APIKey          string
	CredentialsPath string
}

// LoadClient reads REGISTRY_URL and REGISTRY_API_KEY, both mandatory, and
// resolves the credential file from REGISTRY_CREDENTIALS_FILE or the user
// config directory.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 1)

	if raw := strings.TrimSpace(os.Getenv("REGISTRY_URL")); raw == "" {
		missing = append(missing, "REGISTRY_URL")
	} else if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid = append(invalid, "REGISTRY_URL")
	} else {
		cfg.URL = strings.TrimRight(raw, "/")
	}

	if key := strings.TrimSpace(os.Getenv("REGISTRY_API_KEY")); key == "" {
		missing = append(missing, "REGISTRY_API_KEY")
	} else {
		cfg.APIKey = key
	}

	path, err := CredentialsPath()
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.CredentialsPath = path

	if len(missing) > 0 {
		return ClientConfig{}, fmt.Errorf("variáveis de ambiente obrigatórias ausentes: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return ClientConfig{}, fmt.Errorf("valores inválidos nas variáveis de ambiente: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// CredentialsPath returns REGISTRY_CREDENTIALS_FILE when set and the default
// location under the user config directory otherwise.
func CredentialsPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("REGISTRY_CREDENTIALS_FILE")); path != "" {
		return path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("localizar diretório de configuração: %w", err)
	}
	return filepath.Join(dir, "oficios-registry", CredentialsFileName), nil
}
