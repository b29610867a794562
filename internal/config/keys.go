package config

import (
	"net/url"
	"os"
)

// SecretSource represents where a secret comes from.
type SecretSource string

const (
	SourceEnv    SecretSource = "env"
	SourceConfig SecretSource = "config"
	SourceNone   SecretSource = "none"
)

// SecretStatus reports whether a credential-bearing setting is set,
// without exposing it.
type SecretStatus struct {
	Name   string       `json:"name"`
	Source SecretSource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"`
}

// CheckSecrets returns the status of the settings that may carry
// credentials.
func CheckSecrets(cfg *Config) []SecretStatus {
	return []SecretStatus{
		checkSecret("Redis URL", cfg.Store.RedisURL, "FIDCSIM_STORE_REDIS_URL", MaskURL),
	}
}

// Redacted returns a copy of cfg that is safe to print or serve.
func Redacted(cfg *Config) *Config {
	out := *cfg
	out.API.CORSOrigins = append([]string(nil), cfg.API.CORSOrigins...)
	out.Store.RedisURL = MaskURL(cfg.Store.RedisURL)
	return &out
}

func checkSecret(name, value, envVar string, mask func(string) string) SecretStatus {
	status := SecretStatus{Name: name, IsSet: value != "", Source: SourceNone}
	if value == "" {
		return status
	}
	if os.Getenv(envVar) != "" {
		status.Source = SourceEnv
	} else {
		status.Source = SourceConfig
	}
	status.Masked = mask(value)
	return status
}

// MaskURL hides the password of a URL. Unparseable input is fully masked.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return maskKey(raw)
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// maskKey masks a secret for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
