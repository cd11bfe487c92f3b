// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from an optional YAML file and
// environment variables. The result is built once and passed into every
// client constructor; nothing reads the environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMailtrapBaseURL = "https://mailtrap.io"
	DefaultHelperFunction  = "test-helper"
	DefaultCleanupFunction = "cleanup-test-data-unified"
)

// MailtrapConfig holds the mailbox-capture credentials.
type MailtrapConfig struct {
	APIToken  string `yaml:"api_token"`
	InboxID   string `yaml:"inbox_id"`
	AccountID string `yaml:"account_id"`
	BaseURL   string `yaml:"base_url"`
}

// Missing returns the environment names of absent required values.
func (m MailtrapConfig) Missing() []string {
	var missing []string
	if m.APIToken == "" {
		missing = append(missing, "MAILTRAP_API_TOKEN")
	}
	if m.InboxID == "" {
		missing = append(missing, "MAILTRAP_INBOX_ID")
	}
	if m.AccountID == "" {
		missing = append(missing, "MAILTRAP_ACCOUNT_ID")
	}
	return missing
}

// Configured reports whether all three required values are present.
func (m MailtrapConfig) Configured() bool {
	return len(m.Missing()) == 0
}

// SupabaseConfig holds the public project settings used by the test runner.
type SupabaseConfig struct {
	URL             string `yaml:"url"`
	PublishableKey  string `yaml:"publishable_key"`
	HelperFunction  string `yaml:"helper_function"`
	CleanupFunction string `yaml:"cleanup_function"`
}

func (s SupabaseConfig) Missing() []string {
	var missing []string
	if s.URL == "" {
		missing = append(missing, "VITE_SUPABASE_URL")
	}
	if s.PublishableKey == "" {
		missing = append(missing, "VITE_SUPABASE_PUBLISHABLE_KEY")
	}
	return missing
}

// FunctionURL returns the callable-function endpoint for name.
func (s SupabaseConfig) FunctionURL(name string) string {
	return strings.TrimRight(s.URL, "/") + "/functions/v1/" + name
}

// HelperConfig holds the server-side secrets of the privileged helper.
// None of these are ever given to the test runner.
type HelperConfig struct {
	Port              int    `yaml:"port"`
	DatabaseURL       string `yaml:"database_url"`
	ServiceRoleKey    string `yaml:"service_role_key"`
	JWTSecret         string `yaml:"jwt_secret"`
	WebhookSecret     string `yaml:"webhook_secret"`
	InboundWebhookURL string `yaml:"inbound_webhook_url"`
	RedisURL          string `yaml:"redis_url"`
}

// StorageConfig points at the S3-compatible bucket holding user avatars.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	AvatarPrefix    string `yaml:"avatar_prefix"`
}

// Enabled reports whether avatar purging can run.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// BrowserConfig drives the Playwright contact-form scenarios.
type BrowserConfig struct {
	BaseURL     string `yaml:"base_url"`
	ContactPath string `yaml:"contact_path"`
	Headless    bool   `yaml:"headless"`
	SlowMoMs    int    `yaml:"slow_mo_ms"`
}

// CleanupConfig holds the test-account heuristics. Persistent emails are
// fixture accounts that are never deleted.
type CleanupConfig struct {
	PersistentEmails []string `yaml:"persistent_emails"`
	EmailPrefixes    []string `yaml:"email_prefixes"`
	TestDomains      []string `yaml:"test_domains"`
	NamePatterns     []string `yaml:"name_patterns"`
	ContentPatterns  []string `yaml:"content_patterns"`
}

// Config holds all configuration for the harness and the helper service.
type Config struct {
	Mailtrap MailtrapConfig `yaml:"mailtrap"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Helper   HelperConfig   `yaml:"helper"`
	Storage  StorageConfig  `yaml:"storage"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Browser  BrowserConfig  `yaml:"browser"`
}

// DefaultCleanup returns the built-in test-account heuristics.
func DefaultCleanup() CleanupConfig {
	return CleanupConfig{
		PersistentEmails: []string{
			"testbestie@example.com",
			"testguardian@example.com",
			"testsupporter@example.com",
			"testvendor@example.com",
			"testadmin@example.com",
		},
		EmailPrefixes:   []string{"test-", "e2e-", "emailtest-"},
		TestDomains:     []string{"test.com", "e2e.test"},
		NamePatterns:    []string{"Test User", "E2E", "Test Guardian", "Test Bestie"},
		ContentPatterns: []string{"E2E Test", "Test User"},
	}
}

// Load reads configuration from the YAML file at CONFIG_PATH (default
// config.yaml; a missing file is not an error) and then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Mailtrap: MailtrapConfig{BaseURL: DefaultMailtrapBaseURL},
		Supabase: SupabaseConfig{
			HelperFunction:  DefaultHelperFunction,
			CleanupFunction: DefaultCleanupFunction,
		},
		Helper:  HelperConfig{Port: 8080},
		Storage: StorageConfig{Region: "us-east-1", Bucket: "avatars"},
		Cleanup: DefaultCleanup(),
		Browser: BrowserConfig{BaseURL: "http://localhost:5173", ContactPath: "/contact", Headless: true},
	}

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Mailtrap.APIToken = envOrDefault("MAILTRAP_API_TOKEN", cfg.Mailtrap.APIToken)
	cfg.Mailtrap.InboxID = envOrDefault("MAILTRAP_INBOX_ID", cfg.Mailtrap.InboxID)
	cfg.Mailtrap.AccountID = envOrDefault("MAILTRAP_ACCOUNT_ID", cfg.Mailtrap.AccountID)
	cfg.Mailtrap.BaseURL = envOrDefault("MAILTRAP_BASE_URL", cfg.Mailtrap.BaseURL)

	cfg.Supabase.URL = envOrDefault("VITE_SUPABASE_URL", cfg.Supabase.URL)
	cfg.Supabase.PublishableKey = envOrDefault("VITE_SUPABASE_PUBLISHABLE_KEY", cfg.Supabase.PublishableKey)
	cfg.Supabase.HelperFunction = envOrDefault("HELPER_FUNCTION", cfg.Supabase.HelperFunction)
	cfg.Supabase.CleanupFunction = envOrDefault("CLEANUP_FUNCTION", cfg.Supabase.CleanupFunction)

	cfg.Helper.Port = envOrDefaultInt("PORT", cfg.Helper.Port)
	cfg.Helper.DatabaseURL = envOrDefault("DATABASE_URL", cfg.Helper.DatabaseURL)
	cfg.Helper.ServiceRoleKey = envOrDefault("SUPABASE_SERVICE_ROLE_KEY", cfg.Helper.ServiceRoleKey)
	cfg.Helper.JWTSecret = envOrDefault("SUPABASE_JWT_SECRET", cfg.Helper.JWTSecret)
	cfg.Helper.WebhookSecret = envOrDefault("RESEND_WEBHOOK_SECRET", cfg.Helper.WebhookSecret)
	cfg.Helper.InboundWebhookURL = envOrDefault("INBOUND_WEBHOOK_URL", cfg.Helper.InboundWebhookURL)
	cfg.Helper.RedisURL = envOrDefault("REDIS_URL", cfg.Helper.RedisURL)

	cfg.Storage.Endpoint = envOrDefault("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = envOrDefault("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.Bucket = envOrDefault("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.AccessKeyID = envOrDefault("STORAGE_ACCESS_KEY_ID", cfg.Storage.AccessKeyID)
	cfg.Storage.SecretAccessKey = envOrDefault("STORAGE_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey)
	cfg.Storage.AvatarPrefix = envOrDefault("STORAGE_AVATAR_PREFIX", cfg.Storage.AvatarPrefix)

	cfg.Browser.BaseURL = envOrDefault("APP_BASE_URL", cfg.Browser.BaseURL)
	cfg.Browser.ContactPath = envOrDefault("CONTACT_PATH", cfg.Browser.ContactPath)
	cfg.Browser.Headless = envOrDefaultBool("HEADLESS", cfg.Browser.Headless)
	cfg.Browser.SlowMoMs = envOrDefaultInt("SLOW_MO_MS", cfg.Browser.SlowMoMs)

	if v := envList("CLEANUP_PERSISTENT_EMAILS"); len(v) > 0 {
		cfg.Cleanup.PersistentEmails = v
	}
}

// Mailtrap values are read without trimming so that setup diagnostics can
// flag stray whitespace from copy-pasted tokens.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
