package config

import "testing"

func TestParseEmailAllowList(t *testing.T) {
	set := ParseEmailAllowList(" Root@Example.edu, ops@example.edu ,,")
	if len(set) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(set))
	}
	cfg := &Config{SuperAdminEmails: set}
	if !cfg.IsSuperAdmin("root@example.edu") || !cfg.IsSuperAdmin(" OPS@example.edu") {
		t.Fatalf("expected case-insensitive match")
	}
	if cfg.IsSuperAdmin("someone@example.edu") {
		t.Fatalf("unexpected match")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("USE_LOCAL_DB", "true")
	t.Setenv("SUPER_ADMIN_EMAILS", "a@x.edu,b@x.edu")
	t.Setenv("PLATFORM_COMMISSION_BPS", "1500")
	t.Setenv("ALLOWED_ORIGINS", "https://relay.example, https://rebound.example")

	cfg := LoadConfig()
	if cfg.CommissionBps != 1500 {
		t.Fatalf("commission = %d", cfg.CommissionBps)
	}
	if len(cfg.SuperAdminEmails) != 2 {
		t.Fatalf("super admins = %v", cfg.SuperAdminEmails)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://rebound.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadCommission(t *testing.T) {
	cfg := &Config{Port: "3000", UseLocalDB: true, JWTSecret: "s", CommissionBps: 20000}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for commission > 10000")
	}
}
