package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
db:
  host: 10.0.0.9
  port: 3307
  user: closer
  password: hunter2
  database: closer_prod

mail:
  domain: loads.example.com
  local_part: rates
  sendmail_path: /usr/local/bin/msmtp

pricing:
  green_threshold: 0.97
  red_threshold: 0.85
  counter_markup: 1.10
  increment_cents: 2500
  min_offer_cents: 50000
  max_offer_cents: 1500000

fees:
  dispatch_fee_rate: "0.030"
  referral_bounty_cap: "10.00"

billing:
  timezone: America/Chicago
  cron_spec: "0 8 * * SAT"
  workers: 8
  charge_timeout_seconds: 45
  payment_url: https://pay.example.com/v1
  payment_token: tok_abc

alerts:
  slack:
    bot_token: xoxb-123
    channel_id: C0FREIGHT

dashboard:
  port: 9090
`

const minimalYAML = `
mail:
  domain: loads.example.com
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DB.Host != "10.0.0.9" {
		t.Errorf("DB.Host = %q, want %q", cfg.DB.Host, "10.0.0.9")
	}
	if cfg.DB.Port != 3307 {
		t.Errorf("DB.Port = %d, want %d", cfg.DB.Port, 3307)
	}
	if cfg.DB.Database != "closer_prod" {
		t.Errorf("DB.Database = %q, want %q", cfg.DB.Database, "closer_prod")
	}
	if cfg.Mail.Domain != "loads.example.com" {
		t.Errorf("Mail.Domain = %q, want %q", cfg.Mail.Domain, "loads.example.com")
	}
	if cfg.Mail.LocalPart != "rates" {
		t.Errorf("Mail.LocalPart = %q, want %q", cfg.Mail.LocalPart, "rates")
	}
	if cfg.Mail.SendmailPath != "/usr/local/bin/msmtp" {
		t.Errorf("Mail.SendmailPath = %q, want %q", cfg.Mail.SendmailPath, "/usr/local/bin/msmtp")
	}
	if cfg.Pricing.GreenThreshold != 0.97 {
		t.Errorf("Pricing.GreenThreshold = %v, want 0.97", cfg.Pricing.GreenThreshold)
	}
	if cfg.Pricing.IncrementCents != 2500 {
		t.Errorf("Pricing.IncrementCents = %d, want 2500", cfg.Pricing.IncrementCents)
	}
	if cfg.Fees.DispatchFeeRate != "0.030" {
		t.Errorf("Fees.DispatchFeeRate = %q, want %q", cfg.Fees.DispatchFeeRate, "0.030")
	}
	if cfg.Fees.ReferralBountyCap != "10.00" {
		t.Errorf("Fees.ReferralBountyCap = %q, want %q", cfg.Fees.ReferralBountyCap, "10.00")
	}
	if cfg.Billing.Timezone != "America/Chicago" {
		t.Errorf("Billing.Timezone = %q, want %q", cfg.Billing.Timezone, "America/Chicago")
	}
	if cfg.Billing.Workers != 8 {
		t.Errorf("Billing.Workers = %d, want 8", cfg.Billing.Workers)
	}
	if cfg.Billing.PaymentURL != "https://pay.example.com/v1" {
		t.Errorf("Billing.PaymentURL = %q, want %q", cfg.Billing.PaymentURL, "https://pay.example.com/v1")
	}
	if cfg.Alerts.Slack.BotToken != "xoxb-123" {
		t.Errorf("Alerts.Slack.BotToken = %q, want %q", cfg.Alerts.Slack.BotToken, "xoxb-123")
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", cfg.Dashboard.Port)
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DB.Host != "127.0.0.1" {
		t.Errorf("DB.Host = %q, want %q (default)", cfg.DB.Host, "127.0.0.1")
	}
	if cfg.DB.Port != 3306 {
		t.Errorf("DB.Port = %d, want %d (default)", cfg.DB.Port, 3306)
	}
	if cfg.DB.Database != "closer" {
		t.Errorf("DB.Database = %q, want %q (default)", cfg.DB.Database, "closer")
	}
	if cfg.Mail.LocalPart != "dispatch" {
		t.Errorf("Mail.LocalPart = %q, want %q (default)", cfg.Mail.LocalPart, "dispatch")
	}
	if cfg.Mail.SendmailPath != "/usr/sbin/sendmail" {
		t.Errorf("Mail.SendmailPath = %q, want %q (default)", cfg.Mail.SendmailPath, "/usr/sbin/sendmail")
	}
	if cfg.Pricing.GreenThreshold != 0.95 {
		t.Errorf("Pricing.GreenThreshold = %v, want 0.95 (default)", cfg.Pricing.GreenThreshold)
	}
	if cfg.Pricing.RedThreshold != 0.80 {
		t.Errorf("Pricing.RedThreshold = %v, want 0.80 (default)", cfg.Pricing.RedThreshold)
	}
	if cfg.Pricing.IncrementCents != 5000 {
		t.Errorf("Pricing.IncrementCents = %d, want 5000 (default)", cfg.Pricing.IncrementCents)
	}
	if cfg.Fees.DispatchFeeRate != "0.025" {
		t.Errorf("Fees.DispatchFeeRate = %q, want %q (default)", cfg.Fees.DispatchFeeRate, "0.025")
	}
	if cfg.Fees.SliceTreasury != "0.2632" {
		t.Errorf("Fees.SliceTreasury = %q, want %q (default)", cfg.Fees.SliceTreasury, "0.2632")
	}
	if cfg.Fees.ReferralBountyCap != "5.00" {
		t.Errorf("Fees.ReferralBountyCap = %q, want %q (default)", cfg.Fees.ReferralBountyCap, "5.00")
	}
	if cfg.Billing.Timezone != "America/New_York" {
		t.Errorf("Billing.Timezone = %q, want %q (default)", cfg.Billing.Timezone, "America/New_York")
	}
	if cfg.Billing.Workers != 4 {
		t.Errorf("Billing.Workers = %d, want 4 (default)", cfg.Billing.Workers)
	}
	if cfg.Billing.ChargeTimeout != 30 {
		t.Errorf("Billing.ChargeTimeout = %d, want 30 (default)", cfg.Billing.ChargeTimeout)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080 (default)", cfg.Dashboard.Port)
	}
}

func TestParse_MissingMailDomain(t *testing.T) {
	_, err := Parse([]byte(`{}`))
	if err == nil {
		t.Fatal("expected error for missing mail.domain")
	}
	if !strings.Contains(err.Error(), "mail.domain is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "mail.domain is required")
	}
}

func TestParse_GreenThresholdBelowRed(t *testing.T) {
	yaml := `
mail:
  domain: loads.example.com
pricing:
  green_threshold: 0.70
  red_threshold: 0.80
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for green <= red")
	}
	if !strings.Contains(err.Error(), "green_threshold must exceed") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "green_threshold must exceed")
	}
}

func TestParse_CounterMarkupBelowOne(t *testing.T) {
	yaml := `
mail:
  domain: loads.example.com
pricing:
  counter_markup: 0.95
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for counter_markup < 1.0")
	}
	if !strings.Contains(err.Error(), "counter_markup must be >= 1.0") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "counter_markup must be >= 1.0")
	}
}

func TestParse_MinOfferAboveMax(t *testing.T) {
	yaml := `
mail:
  domain: loads.example.com
pricing:
  min_offer_cents: 2000000
  max_offer_cents: 100000
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for min >= max")
	}
	if !strings.Contains(err.Error(), "min_offer_cents must be below") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "min_offer_cents must be below")
	}
}

func TestParse_BadTimezone(t *testing.T) {
	yaml := `
mail:
  domain: loads.example.com
billing:
  timezone: Mars/Olympus_Mons
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	if !strings.Contains(err.Error(), "billing.timezone") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "billing.timezone")
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	yaml := `
pricing:
  green_threshold: 0.50
  red_threshold: 0.80
  increment_cents: -1
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "mail.domain is required") {
		t.Errorf("error missing 'mail.domain is required': %s", msg)
	}
	if !strings.Contains(msg, "green_threshold must exceed") {
		t.Errorf("error missing 'green_threshold must exceed': %s", msg)
	}
	if !strings.Contains(msg, "increment_cents must be positive") {
		t.Errorf("error missing 'increment_cents must be positive': %s", msg)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte(":::invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closer.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mail.Domain != "loads.example.com" {
		t.Errorf("Mail.Domain = %q, want %q", cfg.Mail.Domain, "loads.example.com")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/closer.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}
