// Package config provides YAML-based configuration loading for Closer.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Closer configuration, loaded from closer.yaml.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Mail      MailConfig      `yaml:"mail"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Fees      FeesConfig      `yaml:"fees"`
	Billing   BillingConfig   `yaml:"billing"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DBConfig holds connection settings for the MySQL server.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// MailConfig holds the routing-token envelope settings. Transport itself
// (SMTP/IMAP mechanics) lives in an external collaborator.
type MailConfig struct {
	Domain       string `yaml:"domain"`        // address-tag domain, e.g. loads.example.com
	LocalPart    string `yaml:"local_part"`    // base local part for dispatch addresses
	SendmailPath string `yaml:"sendmail_path"` // local MTA binary handed the envelope
}

// PricingConfig holds the zone thresholds and counter rounding rules.
// These are copied into an immutable zone.Policy per decision; nothing
// reads them as process-wide mutable state.
type PricingConfig struct {
	GreenThreshold float64 `yaml:"green_threshold"`
	RedThreshold   float64 `yaml:"red_threshold"`
	CounterMarkup  float64 `yaml:"counter_markup"`
	IncrementCents int64   `yaml:"increment_cents"`
	MinOfferCents  int64   `yaml:"min_offer_cents"`
	MaxOfferCents  int64   `yaml:"max_offer_cents"`
}

// FeesConfig holds the dispatch fee rate and the revenue slice split.
// Rates are decimal strings so fee math never touches binary floats.
type FeesConfig struct {
	DispatchFeeRate    string `yaml:"dispatch_fee_rate"`
	SliceDriverCredits string `yaml:"slice_driver_credits"`
	SliceInfraReserve  string `yaml:"slice_infra_reserve"`
	SliceTreasury      string `yaml:"slice_treasury"`
	ReferralBountyRate string `yaml:"referral_bounty_rate"`
	ReferralBountyCap  string `yaml:"referral_bounty_cap"`
}

// BillingConfig holds the weekly settlement job settings.
type BillingConfig struct {
	Timezone      string `yaml:"timezone"`
	CronSpec      string `yaml:"cron_spec"`
	Workers       int    `yaml:"workers"`
	ChargeTimeout int    `yaml:"charge_timeout_seconds"`
	PaymentURL    string `yaml:"payment_url"`   // payment collaborator base URL
	PaymentToken  string `yaml:"payment_token"` // bearer token for the collaborator
}

// AlertsConfig holds operator notification settings. Any subset may be
// configured; unconfigured notifiers are skipped.
type AlertsConfig struct {
	Slack   SlackAlertConfig   `yaml:"slack"`
	Discord DiscordAlertConfig `yaml:"discord"`
}

// SlackAlertConfig configures the Slack alert notifier.
type SlackAlertConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordAlertConfig configures the Discord alert notifier.
type DiscordAlertConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DashboardConfig holds the read-only HTTP API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.DB.Database == "" {
		c.DB.Database = "closer"
	}
	if c.Mail.LocalPart == "" {
		c.Mail.LocalPart = "dispatch"
	}
	if c.Mail.SendmailPath == "" {
		c.Mail.SendmailPath = "/usr/sbin/sendmail"
	}
	if c.Pricing.GreenThreshold == 0 {
		c.Pricing.GreenThreshold = 0.95
	}
	if c.Pricing.RedThreshold == 0 {
		c.Pricing.RedThreshold = 0.80
	}
	if c.Pricing.CounterMarkup == 0 {
		c.Pricing.CounterMarkup = 1.08
	}
	if c.Pricing.IncrementCents == 0 {
		c.Pricing.IncrementCents = 5000 // $50
	}
	if c.Pricing.MinOfferCents == 0 {
		c.Pricing.MinOfferCents = 30000 // $300
	}
	if c.Pricing.MaxOfferCents == 0 {
		c.Pricing.MaxOfferCents = 2000000 // $20,000
	}
	if c.Fees.DispatchFeeRate == "" {
		c.Fees.DispatchFeeRate = "0.025"
	}
	if c.Fees.SliceDriverCredits == "" {
		c.Fees.SliceDriverCredits = "0.2105"
	}
	if c.Fees.SliceInfraReserve == "" {
		c.Fees.SliceInfraReserve = "0.2105"
	}
	if c.Fees.SliceTreasury == "" {
		c.Fees.SliceTreasury = "0.2632"
	}
	if c.Fees.ReferralBountyRate == "" {
		c.Fees.ReferralBountyRate = "0.10"
	}
	if c.Fees.ReferralBountyCap == "" {
		c.Fees.ReferralBountyCap = "5.00"
	}
	if c.Billing.Timezone == "" {
		c.Billing.Timezone = "America/New_York"
	}
	if c.Billing.CronSpec == "" {
		c.Billing.CronSpec = "0 9 * * SAT" // charge Friday's week on Saturday morning
	}
	if c.Billing.Workers == 0 {
		c.Billing.Workers = 4
	}
	if c.Billing.ChargeTimeout == 0 {
		c.Billing.ChargeTimeout = 30
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Mail.Domain == "" {
		errs = append(errs, "mail.domain is required")
	}
	if c.Pricing.GreenThreshold <= c.Pricing.RedThreshold {
		errs = append(errs, "pricing.green_threshold must exceed pricing.red_threshold")
	}
	if c.Pricing.RedThreshold <= 0 {
		errs = append(errs, "pricing.red_threshold must be positive")
	}
	if c.Pricing.CounterMarkup < 1.0 {
		errs = append(errs, "pricing.counter_markup must be >= 1.0")
	}
	if c.Pricing.IncrementCents <= 0 {
		errs = append(errs, "pricing.increment_cents must be positive")
	}
	if c.Pricing.MinOfferCents >= c.Pricing.MaxOfferCents {
		errs = append(errs, "pricing.min_offer_cents must be below pricing.max_offer_cents")
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("billing.timezone: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
