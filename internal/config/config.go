package config

import (
	"os"
	"strings"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/pricing"
	"github.com/RamonvdW/nhb-apps-sub010/internal/products"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	ProviderMollie   = "mollie"
	ProviderMidtrans = "midtrans"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server   Server   `yaml:"server" envconfig:"SERVER"`
	DB       DB       `yaml:"db" envconfig:"DB"`
	Worker   Worker   `yaml:"worker" envconfig:"WORKER"`
	Payments Payments `yaml:"payments" envconfig:"PAYMENTS"`
	Pricing  Pricing  `yaml:"pricing" envconfig:"PRICING"`
}

type Server struct {
	Addr string `yaml:"addr" envconfig:"ADDR"`
	// AdminToken guards the back-office routes; empty closes them.
	AdminToken string `yaml:"admin_token" envconfig:"ADMIN_TOKEN"`
}

type DB struct {
	DSN      string `yaml:"dsn" envconfig:"DSN"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
}

type Worker struct {
	WakeTimeout    time.Duration `yaml:"wake_timeout" envconfig:"WAKE_TIMEOUT"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WaitStart      time.Duration `yaml:"wait_start" envconfig:"WAIT_START"`
	WaitBudget     time.Duration `yaml:"wait_budget" envconfig:"WAIT_BUDGET"`
	RetentionDays  int           `yaml:"retention_days" envconfig:"RETENTION_DAYS"`
	AlertRecipient string        `yaml:"alert_recipient" envconfig:"ALERT_RECIPIENT"`
	Duration       time.Duration `yaml:"duration" envconfig:"DURATION"`
	// StopAtMinute ends a run at that minute of the hour; -1 (the default)
	// disables.
	StopAtMinute int `yaml:"stop_at_minute" envconfig:"STOP_AT_MINUTE"`
	// QuickScale divides every worker timing in quick mode.
	QuickScale int `yaml:"quick_scale" envconfig:"QUICK_SCALE"`
}

type Payments struct {
	Provider    string          `yaml:"provider" envconfig:"PROVIDER"`
	BaseURL     string          `yaml:"base_url" envconfig:"BASE_URL"`
	WebhookURL  string          `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	ReturnURL   string          `yaml:"return_url" envconfig:"RETURN_URL"`
	UmbrellaKey string          `yaml:"umbrella_key" envconfig:"UMBRELLA_KEY"`
	Production  bool            `yaml:"production" envconfig:"PRODUCTION"`
	Epsilon     decimal.Decimal `yaml:"epsilon" envconfig:"EPSILON"`
}

type Pricing struct {
	Shipping      map[string]decimal.Decimal `yaml:"shipping" envconfig:"SHIPPING"`
	ComboMinLines int                        `yaml:"combo_min_lines" envconfig:"COMBO_MIN_LINES"`
	ComboPercent  decimal.Decimal            `yaml:"combo_percent" envconfig:"COMBO_PERCENT"`
}

// Load reads the yaml file at path (or $CONFIG_PATH, or the default
// location), applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Config{Worker: Worker{StopAtMinute: -1}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	// only variables that are set override the file
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "environment overrides")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DB.MaxConns <= 0 {
		c.DB.MaxConns = 10
	}
	w := &c.Worker
	if w.WakeTimeout <= 0 {
		w.WakeTimeout = 5 * time.Second
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 5
	}
	if w.WaitStart <= 0 {
		w.WaitStart = 200 * time.Millisecond
	}
	if w.WaitBudget <= 0 {
		w.WaitBudget = 3 * time.Second
	}
	if w.RetentionDays <= 0 {
		w.RetentionDays = 90
	}
	if w.Duration <= 0 {
		w.Duration = time.Hour
	}
	if w.QuickScale <= 0 {
		w.QuickScale = 20
	}
	if c.Payments.Provider == "" {
		c.Payments.Provider = ProviderMollie
	}
	c.Payments.Provider = strings.ToLower(c.Payments.Provider)
	if !c.Payments.Epsilon.IsPositive() {
		c.Payments.Epsilon = decimal.RequireFromString("0.001")
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.Wrap(ErrInvalid, "server.addr is required")
	}
	if c.DB.DSN == "" {
		return errors.Wrap(ErrInvalid, "db.dsn is required")
	}
	switch c.Payments.Provider {
	case ProviderMollie, ProviderMidtrans:
	default:
		return errors.Wrapf(ErrInvalid, "payments.provider %q is not supported", c.Payments.Provider)
	}
	if c.Payments.WebhookURL == "" {
		return errors.Wrap(ErrInvalid, "payments.webhook_url is required")
	}
	if c.Worker.StopAtMinute < -1 || c.Worker.StopAtMinute > 59 {
		return errors.Wrap(ErrInvalid, "worker.stop_at_minute must be -1 or 0-59")
	}
	for name, cost := range c.Pricing.Shipping {
		if !models.Transport(name).Valid() {
			return errors.Wrapf(ErrInvalid, "pricing.shipping: unknown transport %q", name)
		}
		if cost.IsNegative() {
			return errors.Wrapf(ErrInvalid, "pricing.shipping.%s is negative", name)
		}
	}
	if c.Pricing.ComboPercent.IsNegative() || c.Pricing.ComboPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Wrap(ErrInvalid, "pricing.combo_percent must be between 0 and 100")
	}
	return nil
}

func (p Pricing) Service() pricing.Service {
	s := pricing.Service{Shipping: map[models.Transport]decimal.Decimal{}}
	for name, cost := range p.Shipping {
		s.Shipping[models.Transport(name)] = cost
	}
	return s
}

// Combo returns the automatic discount; it is disabled without a minimum.
func (p Pricing) Combo() products.Combo {
	if p.ComboMinLines <= 0 {
		return products.Combo{}
	}
	return products.Combo{MinLines: p.ComboMinLines, Percent: p.ComboPercent}
}

func (w Worker) Retention() time.Duration {
	return time.Duration(w.RetentionDays) * 24 * time.Hour
}

// Quick returns the settings with all timings divided by QuickScale.
func (w Worker) Quick() Worker {
	scale := time.Duration(w.QuickScale)
	w.WakeTimeout /= scale
	w.WaitStart /= scale
	w.WaitBudget /= scale
	w.Duration /= scale
	w.StopAtMinute = -1
	return w
}
