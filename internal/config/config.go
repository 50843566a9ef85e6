// Package config loads application configuration from the environment.
package config

import "github.com/kelseyhightower/envconfig"

// Config holds application configuration loaded from environment
// variables. Sheets fields are optional; export stays disabled without
// them.
type Config struct {
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"` // external URL Twilio signs webhooks against
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	DBPath string `envconfig:"DB_PATH" default:"./data/whatsapp-bot.db"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioFrom        string `envconfig:"TWILIO_WHATSAPP_FROM" required:"true"` // e.g. +14155238886
	TwilioTemplateSID string `envconfig:"TWILIO_TEMPLATE_SID"`                  // fallback content template

	AdminAPIKey string `envconfig:"ADMIN_API_KEY"`

	HebcalBaseURL   string `envconfig:"HEBCAL_BASE_URL" default:"https://www.hebcal.com/hebcal"`
	DefaultTZ       string `envconfig:"DEFAULT_TZ" default:"Asia/Jerusalem"`
	DefaultLocation string `envconfig:"DEFAULT_LOCATION" default:"Jerusalem"`

	SheetsClientEmail   string `envconfig:"SHEETS_CLIENT_EMAIL"`
	SheetsPrivateKey    string `envconfig:"SHEETS_PRIVATE_KEY"`
	SheetsSpreadsheetID string `envconfig:"SHEETS_SPREADSHEET_ID"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SheetsConfigured reports whether the export credentials are complete.
func (c Config) SheetsConfigured() bool {
	return c.SheetsClientEmail != "" && c.SheetsPrivateKey != "" && c.SheetsSpreadsheetID != ""
}
