package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}

	if err := validateModelsConfig(cfg.Models); err != nil {
		return err
	}
	if err := validateStoreConfig(cfg.Store); err != nil {
		return err
	}
	if err := validateUploadsConfig(cfg.Uploads); err != nil {
		return err
	}
	if err := validateActivationConfig(cfg.Activation); err != nil {
		return err
	}
	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.ActivationLevel)) {
	case "", "metadata", "redacted":
	default:
		return fmt.Errorf("logging.activation_level must be metadata or redacted, got %q", cfg.Logging.ActivationLevel)
	}
	return nil
}

func validateModelsConfig(m ModelsConfig) error {
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
		return nil
	case "onnx":
		if strings.TrimSpace(m.Dir) == "" {
			return errors.New("models.dir must be set for the onnx backend")
		}
		if m.SeqLen < 8 || m.SeqLen > 4096 {
			return fmt.Errorf("models.seq_len must be between 8 and 4096, got %d", m.SeqLen)
		}
		return nil
	case "http":
		if strings.TrimSpace(m.HTTP.BaseURL) == "" {
			return errors.New("models.http.base_url must be set for the http backend")
		}
		u, err := url.Parse(m.HTTP.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("models.http.base_url is invalid")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("models.http.base_url must be http or https")
		}
		if err := blockPrivateHost(u.Host, m.HTTP.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("models.http.base_url blocked: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("models.backend must be onnx, http or none, got %q", m.Backend)
	}
}

func validateStoreConfig(s StoreConfig) error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", "memory":
	case "sqlite":
		if strings.TrimSpace(s.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(s.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory, sqlite or postgres, got %q", s.Driver)
	}
	return nil
}

func validateUploadsConfig(u UploadsConfig) error {
	if u.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be positive")
	}
	for _, ext := range u.AllowedExtensions {
		e := strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if e == "" || strings.ContainsAny(e, `/\. `) {
			return fmt.Errorf("uploads.allowed_extensions has invalid entry %q", ext)
		}
	}
	return nil
}

func validateActivationConfig(a ActivationConfig) error {
	for i, s := range a.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("activation sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("activation sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("activation sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("activation sink %d (webhook) url must be http or https", i)
			}
		default:
			return fmt.Errorf("activation sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
		return nil
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked for SSRF safety")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
