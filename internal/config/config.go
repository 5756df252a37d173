// Package config loads the bridge's environment configuration once at startup.
// Components receive the resulting Config value; nothing below cmd/ reads the
// environment directly.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingSetting is returned when a required setting is empty.
	ErrMissingSetting = errors.New("missing required setting")

	// ErrInvalidAccountMap is returned when ACCOUNT_MAP cannot be parsed.
	ErrInvalidAccountMap = errors.New("invalid account map")

	// ErrInvalidSetting is returned when a setting has an unusable value.
	ErrInvalidSetting = errors.New("invalid setting")
)

// SpentSign describes how the ledger reports outflow in a category's spent
// amount.
type SpentSign string

const (
	// SpentNegative means outflow is reported as a negative number.
	SpentNegative SpentSign = "negative"
	// SpentPositive means outflow is reported as a positive number.
	SpentPositive SpentSign = "positive"
)

// AccountMapping links a provider account to a ledger account.
type AccountMapping struct {
	LedgerAccountID string `json:"ledgerAccountId"`
	Currency        string `json:"currency"`
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// String renders the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Ledger holds the remote ledger connection settings.
type Ledger struct {
	ServerURL      string
	Password       string
	BudgetID       string
	BudgetPassword string
	Timeout        time.Duration
	SpentSign      SpentSign
}

// Notify holds the home-automation hub settings. An empty URL disables
// notifications.
type Notify struct {
	URL   string
	Token string
}

// Alerts holds the budget alert settings.
type Alerts struct {
	Times             []ClockTime
	Threshold         float64
	IncludeZeroBudget bool
	SummaryTime       ClockTime
	Location          *time.Location
}

// Archive holds the optional GCP archive settings.
type Archive struct {
	Bucket          string
	Project         string
	Dataset         string
	CredentialsFile string
}

// Queue holds the delivery queue settings.
type Queue struct {
	Buffer  int
	Workers int
}

// Config is the immutable process configuration.
type Config struct {
	Port          string
	LogLevel      string
	WebhookSecret string
	Accounts      map[string]AccountMapping
	Ledger        Ledger
	Notify        Notify
	Alerts        Alerts
	Archive       Archive
	Queue         Queue
}

// Load builds a Config from the given lookup function (normally os.Getenv).
// Any error is a configuration failure and the process must not start.
func Load(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:          get("PORT", "8080"),
		LogLevel:      get("LOG_LEVEL", "info"),
		WebhookSecret: getenv("WEBHOOK_SECRET"),
		Ledger: Ledger{
			ServerURL:      strings.TrimRight(get("LEDGER_SERVER_URL", ""), "/"),
			Password:       getenv("LEDGER_PASSWORD"),
			BudgetID:       get("LEDGER_BUDGET_ID", ""),
			BudgetPassword: getenv("LEDGER_BUDGET_PASSWORD"),
			SpentSign:      SpentSign(strings.ToLower(get("LEDGER_SPENT_SIGN", string(SpentNegative)))),
		},
		Notify: Notify{
			URL:   get("NOTIFY_URL", ""),
			Token: getenv("NOTIFY_TOKEN"),
		},
		Archive: Archive{
			Bucket:          get("ARCHIVE_BUCKET", ""),
			Project:         get("ARCHIVE_PROJECT", ""),
			Dataset:         get("ARCHIVE_DATASET", ""),
			CredentialsFile: get("ARCHIVE_CREDENTIALS_FILE", ""),
		},
	}

	for key, val := range map[string]string{
		"LEDGER_SERVER_URL": cfg.Ledger.ServerURL,
		"LEDGER_PASSWORD":   cfg.Ledger.Password,
		"LEDGER_BUDGET_ID":  cfg.Ledger.BudgetID,
	} {
		if val == "" {
			return Config{}, fmt.Errorf("%w: %s", ErrMissingSetting, key)
		}
	}

	if cfg.Ledger.SpentSign != SpentNegative && cfg.Ledger.SpentSign != SpentPositive {
		return Config{}, fmt.Errorf("%w: LEDGER_SPENT_SIGN must be %q or %q, got %q",
			ErrInvalidSetting, SpentNegative, SpentPositive, cfg.Ledger.SpentSign)
	}

	timeout, err := time.ParseDuration(get("LEDGER_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("%w: LEDGER_TIMEOUT %q", ErrInvalidSetting, getenv("LEDGER_TIMEOUT"))
	}
	cfg.Ledger.Timeout = timeout

	accounts, err := ParseAccountMap(getenv("ACCOUNT_MAP"))
	if err != nil {
		return Config{}, err
	}
	cfg.Accounts = accounts

	if cfg.Alerts, err = loadAlerts(get); err != nil {
		return Config{}, err
	}

	if cfg.Queue.Buffer, err = positiveInt("QUEUE_BUFFER", get("QUEUE_BUFFER", "100")); err != nil {
		return Config{}, err
	}
	if cfg.Queue.Workers, err = positiveInt("QUEUE_WORKERS", get("QUEUE_WORKERS", "4")); err != nil {
		return Config{}, err
	}

	if (cfg.Archive.Project == "") != (cfg.Archive.Dataset == "") {
		return Config{}, fmt.Errorf("%w: ARCHIVE_PROJECT and ARCHIVE_DATASET must be set together", ErrInvalidSetting)
	}

	return cfg, nil
}

func loadAlerts(get func(string, string) string) (Alerts, error) {
	var alerts Alerts

	loc, err := time.LoadLocation(get("TIMEZONE", "Europe/London"))
	if err != nil {
		return Alerts{}, fmt.Errorf("%w: TIMEZONE: %v", ErrInvalidSetting, err)
	}
	alerts.Location = loc

	alerts.Times, err = ParseClockTimes(get("ALERT_TIMES", "08:00,20:00"))
	if err != nil {
		return Alerts{}, fmt.Errorf("%w: ALERT_TIMES: %v", ErrInvalidSetting, err)
	}

	alerts.SummaryTime, err = ParseClockTime(get("MONTHLY_SUMMARY_TIME", "09:00"))
	if err != nil {
		return Alerts{}, fmt.Errorf("%w: MONTHLY_SUMMARY_TIME: %v", ErrInvalidSetting, err)
	}

	alerts.Threshold, err = strconv.ParseFloat(get("ALERT_THRESHOLD", "0.9"), 64)
	if err != nil || alerts.Threshold <= 0 || alerts.Threshold > 1 {
		return Alerts{}, fmt.Errorf("%w: ALERT_THRESHOLD must be a fraction in (0, 1]", ErrInvalidSetting)
	}

	alerts.IncludeZeroBudget, err = strconv.ParseBool(get("ALERT_INCLUDE_ZERO_BUDGET", "false"))
	if err != nil {
		return Alerts{}, fmt.Errorf("%w: ALERT_INCLUDE_ZERO_BUDGET: %v", ErrInvalidSetting, err)
	}

	return alerts, nil
}

// ParseAccountMap parses the JSON account mapping table. An empty string
// yields an empty map; anything that is not a JSON object of mappings with
// a ledger account id is rejected.
func ParseAccountMap(raw string) (map[string]AccountMapping, error) {
	accounts := make(map[string]AccountMapping)
	if strings.TrimSpace(raw) == "" {
		return accounts, nil
	}

	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountMap, err)
	}

	for uid, m := range accounts {
		if strings.TrimSpace(uid) == "" {
			return nil, fmt.Errorf("%w: empty provider account id", ErrInvalidAccountMap)
		}
		if strings.TrimSpace(m.LedgerAccountID) == "" {
			return nil, fmt.Errorf("%w: %s has no ledgerAccountId", ErrInvalidAccountMap, uid)
		}
	}

	return accounts, nil
}

// ParseClockTime parses an HH:MM string.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseClockTimes parses a comma-separated list of HH:MM strings.
func ParseClockTimes(s string) ([]ClockTime, error) {
	var times []ClockTime
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ct, err := ParseClockTime(part)
		if err != nil {
			return nil, err
		}
		times = append(times, ct)
	}
	return times, nil
}

func positiveInt(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidSetting, key)
	}
	return n, nil
}
