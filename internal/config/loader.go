package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config captures the configuration of the registry service.
type Config struct {
	HTTPPort       int
	DBPath         string
	APIKey         string
	SessionTTL     time.Duration
	AuthRate       float64
	AuthBurst      int
	AutoConfirm    bool
	TrustForwarded bool
	RedisAddr      string
	RedisChannel   string
}

// fileConfig mirrors the optional TOML file. Pointer fields distinguish an
// absent key from a zero value.
type fileConfig struct {
	Server struct {
		Port           *int    `toml:"port"`
		APIKey         *string `toml:"api_key"`
		TrustForwarded *bool   `toml:"trust_forwarded"`
	} `toml:"server"`
	Data struct {
		DBPath *string `toml:"db_path"`
	} `toml:"data"`
	Auth struct {
		SessionTTL  *string  `toml:"session_ttl"`
		Rate        *float64 `toml:"rate"`
		Burst       *int     `toml:"burst"`
		AutoConfirm *bool    `toml:"auto_confirm"`
	} `toml:"auth"`
	Realtime struct {
		RedisAddr    *string `toml:"redis_addr"`
		RedisChannel *string `toml:"redis_channel"`
	} `toml:"realtime"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPPort:    8080,
		DBPath:      "registry.db",
		SessionTTL:  24 * time.Hour,
		AuthRate:    1,
		AuthBurst:   5,
		AutoConfirm: true,
	}
}

// Load builds the service configuration from defaults, the TOML file named
// by REGISTRY_CONFIG_FILE when set, and finally the process environment.
// Every missing or invalid entry is reported at once.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("REGISTRY_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if portValue := strings.TrimSpace(os.Getenv("REGISTRY_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "REGISTRY_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := strings.TrimSpace(os.Getenv("REGISTRY_DB_PATH")); path != "" {
		cfg.DBPath = path
	}

	if key := strings.TrimSpace(os.Getenv("REGISTRY_API_KEY")); key != "" {
		cfg.APIKey = key
	}
	if cfg.APIKey == "" {
		missing = append(missing, "REGISTRY_API_KEY")
	}

	if ttlValue := strings.TrimSpace(os.Getenv("REGISTRY_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "REGISTRY_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if rateValue := strings.TrimSpace(os.Getenv("REGISTRY_AUTH_RATE")); rateValue != "" {
		rate, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || rate <= 0 {
			invalid = append(invalid, "REGISTRY_AUTH_RATE")
		} else {
			cfg.AuthRate = rate
		}
	}

	if burstValue := strings.TrimSpace(os.Getenv("REGISTRY_AUTH_BURST")); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "REGISTRY_AUTH_BURST")
		} else {
			cfg.AuthBurst = burst
		}
	}

	if confirmValue := strings.TrimSpace(os.Getenv("REGISTRY_AUTO_CONFIRM")); confirmValue != "" {
		confirm, err := strconv.ParseBool(confirmValue)
		if err != nil {
			invalid = append(invalid, "REGISTRY_AUTO_CONFIRM")
		} else {
			cfg.AutoConfirm = confirm
		}
	}

	if trustValue := strings.TrimSpace(os.Getenv("REGISTRY_TRUST_FORWARDED")); trustValue != "" {
		trust, err := strconv.ParseBool(trustValue)
		if err != nil {
			invalid = append(invalid, "REGISTRY_TRUST_FORWARDED")
		} else {
			cfg.TrustForwarded = trust
		}
	}

	if addr := strings.TrimSpace(os.Getenv("REGISTRY_REDIS_ADDR")); addr != "" {
		cfg.RedisAddr = addr
	}
	if channel := strings.TrimSpace(os.Getenv("REGISTRY_REDIS_CHANNEL")); channel != "" {
		cfg.RedisChannel = channel
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("variáveis de ambiente obrigatórias ausentes: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("valores inválidos nas variáveis de ambiente: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ler arquivo de configuração %s: %w", path, err)
	}

	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("arquivo de configuração %s inválido (linha %d, coluna %d): %w", path, row, col, err)
		}
		return fmt.Errorf("arquivo de configuração %s inválido: %w", path, err)
	}

	invalid := make([]string, 0, 2)
	if v := file.Server.Port; v != nil {
		if *v <= 0 || *v > 65535 {
			invalid = append(invalid, "server.port")
		} else {
			cfg.HTTPPort = *v
		}
	}
	if v := file.Server.APIKey; v != nil {
		cfg.APIKey = strings.TrimSpace(*v)
	}
	if v := file.Server.TrustForwarded; v != nil {
		cfg.TrustForwarded = *v
	}
	if v := file.Data.DBPath; v != nil && strings.TrimSpace(*v) != "" {
		dbPath := strings.TrimSpace(*v)
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(filepath.Dir(path), dbPath)
		}
		cfg.DBPath = dbPath
	}
	if v := file.Auth.SessionTTL; v != nil {
		ttl, err := time.ParseDuration(strings.TrimSpace(*v))
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "auth.session_ttl")
		} else {
			cfg.SessionTTL = ttl
		}
	}
	if v := file.Auth.Rate; v != nil {
		if *v <= 0 {
			invalid = append(invalid, "auth.rate")
		} else {
			cfg.AuthRate = *v
		}
	}
	if v := file.Auth.Burst; v != nil {
		if *v <= 0 {
			invalid = append(invalid, "auth.burst")
		} else {
			cfg.AuthBurst = *v
		}
	}
	if v := file.Auth.AutoConfirm; v != nil {
		cfg.AutoConfirm = *v
	}
	if v := file.Realtime.RedisAddr; v != nil {
		cfg.RedisAddr = strings.TrimSpace(*v)
	}
	if v := file.Realtime.RedisChannel; v != nil {
		cfg.RedisChannel = strings.TrimSpace(*v)
	}

	if len(invalid) > 0 {
		return fmt.Errorf("valores inválidos no arquivo de configuração %s: %s", path, strings.Join(invalid, ", "))
	}
	return nil
}
