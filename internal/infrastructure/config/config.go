package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Contact check strategies.
const (
	ContactCheckMailbox = "mailbox"
	ContactCheckSent    = "sent"
	ContactCheckLedger  = "ledger"
)

// DefaultScopes is the scope set requested during authorization. The
// responder needs read, send and label-modify access.
var DefaultScopes = []string{
	"https://mail.google.com/",
	"https://www.googleapis.com/auth/gmail.compose",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.readonly",
}

const (
	DefaultReplySubject = "🤘 Hello 🤘"
	DefaultReplyBody    = "This is a message just to say hello.\nSo... <b>Hello!</b>  🤘❤️😎"
)

type Config struct {
	// OAuth
	CredentialsPath string
	TokenPath       string
	Scopes          []string

	// Responder
	UnreadQuery   string
	ContactCheck  string
	LabelID       string
	LabelName     string
	ReplyFrom     string
	ReplyFromName string
	ReplySubject  string
	ReplyBody     string
	CandidateRate float64

	// Poll loop
	MinInterval time.Duration
	MaxInterval time.Duration

	// Database
	DatabasePath string

	// Google Cloud
	GoogleCloudProject string
	SubscriptionID     string
	TopicName          string

	// Observability
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// Error reports an invalid configuration value.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		CredentialsPath:    getEnv("CREDENTIALS_PATH", "credentials.json"),
		TokenPath:          getEnv("TOKEN_PATH", "token.json"),
		Scopes:             getList("SCOPES", DefaultScopes),
		UnreadQuery:        getEnv("UNREAD_QUERY", "is:unread"),
		ContactCheck:       strings.ToLower(getEnv("CONTACT_CHECK", ContactCheckMailbox)),
		LabelID:            getEnv("LABEL_ID", ""),
		LabelName:          getEnv("LABEL_NAME", "Auto-Replied"),
		ReplyFrom:          getEnv("REPLY_FROM", ""),
		ReplyFromName:      getEnv("REPLY_FROM_NAME", ""),
		ReplySubject:       getEnv("REPLY_SUBJECT", DefaultReplySubject),
		ReplyBody:          getEnv("REPLY_BODY", DefaultReplyBody),
		DatabasePath:       os.Getenv("DATABASE_PATH"),
		GoogleCloudProject: getEnv("GOOGLE_CLOUD_PROJECT", ""),
		SubscriptionID:     getEnv("SUBSCRIPTION_ID", ""),
		MetricsAddr:        getEnv("METRICS_ADDR", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	if _, ok := os.LookupEnv("DATABASE_PATH"); !ok {
		cfg.DatabasePath = "autoreply.db"
	}

	var err error
	if cfg.MinInterval, err = getDuration("POLL_MIN_INTERVAL", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxInterval, err = getDuration("POLL_MAX_INTERVAL", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.CandidateRate, err = getFloat("CANDIDATE_RATE", 0); err != nil {
		return nil, err
	}

	if cfg.GoogleCloudProject != "" {
		cfg.TopicName = fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleCloudProject, getEnv("TOPIC", "gmail-topic"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.CredentialsPath == "" {
		return &Error{Key: "CREDENTIALS_PATH", Reason: "must not be empty"}
	}
	if c.TokenPath == "" {
		return &Error{Key: "TOKEN_PATH", Reason: "must not be empty"}
	}
	if len(c.Scopes) == 0 {
		return &Error{Key: "SCOPES", Reason: "at least one scope is required"}
	}
	if c.UnreadQuery == "" {
		return &Error{Key: "UNREAD_QUERY", Reason: "must not be empty"}
	}

	switch c.ContactCheck {
	case ContactCheckMailbox, ContactCheckSent:
	case ContactCheckLedger:
		if c.DatabasePath == "" {
			return &Error{Key: "CONTACT_CHECK", Reason: "ledger mode requires DATABASE_PATH"}
		}
	default:
		return &Error{Key: "CONTACT_CHECK", Reason: fmt.Sprintf("unknown strategy %q", c.ContactCheck)}
	}

	if c.LabelID == "" && c.LabelName == "" {
		return &Error{Key: "LABEL_ID", Reason: "LABEL_ID or LABEL_NAME is required"}
	}
	if c.ReplySubject == "" {
		return &Error{Key: "REPLY_SUBJECT", Reason: "must not be empty"}
	}
	if c.ReplyBody == "" {
		return &Error{Key: "REPLY_BODY", Reason: "must not be empty"}
	}
	if c.MinInterval < time.Millisecond {
		return &Error{Key: "POLL_MIN_INTERVAL", Reason: "must be at least 1ms"}
	}
	if c.MaxInterval < c.MinInterval {
		return &Error{Key: "POLL_MAX_INTERVAL", Reason: "must not be below POLL_MIN_INTERVAL"}
	}
	if c.CandidateRate < 0 {
		return &Error{Key: "CANDIDATE_RATE", Reason: "must not be negative"}
	}
	if (c.GoogleCloudProject == "") != (c.SubscriptionID == "") {
		return &Error{Key: "SUBSCRIPTION_ID", Reason: "GOOGLE_CLOUD_PROJECT and SUBSCRIPTION_ID must be set together"}
	}

	return nil
}

// PushEnabled reports whether Gmail push notifications should wake the poll loop.
func (c *Config) PushEnabled() bool {
	return c.GoogleCloudProject != "" && c.SubscriptionID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	return strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &Error{Key: key, Reason: err.Error()}
	}
	return d, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &Error{Key: key, Reason: err.Error()}
	}
	return f, nil
}
