package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Roster backends.
const (
	RosterBackendSheets   = "sheets"
	RosterBackendWorkbook = "workbook"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Policy   PolicyConfig
	Roster   RosterConfig
	Slack    SlackConfig
	SMTP     SMTPConfig
	Webhook  WebhookConfig
	Dedup    DedupConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PolicyConfig carries the auto-approval thresholds. A threshold of zero or
// below disables auto-approval entirely.
type PolicyConfig struct {
	AutoApproveDays          int
	DSPAutoApproveDays       int
	MaxRequestsPerSubmission int
}

// RosterConfig selects and configures the tabular backing store.
type RosterConfig struct {
	Backend          string
	SpreadsheetID    string
	CredentialsFile  string
	WorkbookPath     string
	RosterSheet      string
	AssignmentsSheet string
}

// SlackConfig configures the staff notification channel.
type SlackConfig struct {
	WebhookURL string
	Username   string
	IconEmoji  string
}

// SMTPConfig configures outbound confirmation email.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	ReplyTo     string
	Subject     string
}

// WebhookConfig guards the inbound form-submission endpoint.
type WebhookConfig struct {
	SigningSecret string
}

// DedupConfig tunes the duplicate-submission guard.
type DedupConfig struct {
	TTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Policy = PolicyConfig{
		AutoApproveDays:          v.GetInt("AUTO_APPROVE_THRESHOLD_DAYS"),
		DSPAutoApproveDays:       v.GetInt("AUTO_APPROVE_THRESHOLD_DAYS_DSP"),
		MaxRequestsPerSubmission: v.GetInt("AUTO_APPROVE_ASSIGNMENT_THRESHOLD"),
	}

	cfg.Roster = RosterConfig{
		Backend:          v.GetString("ROSTER_BACKEND"),
		SpreadsheetID:    v.GetString("ROSTER_SPREADSHEET_ID"),
		CredentialsFile:  v.GetString("ROSTER_CREDENTIALS_FILE"),
		WorkbookPath:     v.GetString("ROSTER_WORKBOOK_PATH"),
		RosterSheet:      v.GetString("ROSTER_SHEET_NAME"),
		AssignmentsSheet: v.GetString("ASSIGNMENTS_SHEET_NAME"),
	}

	cfg.Slack = SlackConfig{
		WebhookURL: v.GetString("SLACK_WEBHOOK_URL"),
		Username:   v.GetString("SLACK_USERNAME"),
		IconEmoji:  v.GetString("SLACK_ICON_EMOJI"),
	}

	cfg.SMTP = SMTPConfig{
		Host:        v.GetString("SMTP_HOST"),
		Port:        v.GetInt("SMTP_PORT"),
		Username:    v.GetString("SMTP_USERNAME"),
		Password:    v.GetString("SMTP_PASSWORD"),
		FromAddress: v.GetString("SMTP_FROM_ADDRESS"),
		FromName:    v.GetString("SMTP_FROM_NAME"),
		ReplyTo:     v.GetString("SMTP_REPLY_TO"),
		Subject:     v.GetString("SMTP_SUBJECT"),
	}

	cfg.Webhook = WebhookConfig{SigningSecret: v.GetString("WEBHOOK_SIGNING_SECRET")}

	cfg.Dedup = DedupConfig{TTL: parseDuration(v.GetString("DEDUP_TTL"), 10*time.Minute)}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "extension_approver")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUTO_APPROVE_THRESHOLD_DAYS", 3)
	v.SetDefault("AUTO_APPROVE_THRESHOLD_DAYS_DSP", 7)
	v.SetDefault("AUTO_APPROVE_ASSIGNMENT_THRESHOLD", 3)

	v.SetDefault("ROSTER_BACKEND", RosterBackendWorkbook)
	v.SetDefault("ROSTER_SPREADSHEET_ID", "")
	v.SetDefault("ROSTER_CREDENTIALS_FILE", "credentials.json")
	v.SetDefault("ROSTER_WORKBOOK_PATH", "./roster.xlsx")
	v.SetDefault("ROSTER_SHEET_NAME", "Roster")
	v.SetDefault("ASSIGNMENTS_SHEET_NAME", "Assignments")

	v.SetDefault("SLACK_WEBHOOK_URL", "")
	v.SetDefault("SLACK_USERNAME", "extension-approver")
	v.SetDefault("SLACK_ICON_EMOJI", ":hourglass:")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM_ADDRESS", "no-reply@example.edu")
	v.SetDefault("SMTP_FROM_NAME", "Course Staff")
	v.SetDefault("SMTP_REPLY_TO", "")
	v.SetDefault("SMTP_SUBJECT", "Your extension request was approved")

	v.SetDefault("WEBHOOK_SIGNING_SECRET", "")
	v.SetDefault("DEDUP_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
