package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	RegistryAPIBaseURL string
	RegistryAPIToken   string
	RegistryRateRPS    int
	RegistryRateBurst  int
	RegistryTimeoutMs  int

	MatchAutoThreshold   float64
	MatchReviewThreshold float64
	AmountTolerance      float64
	DateWindowDays       int
	SkipSynced           bool

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailLabel         string
	MailFetchMax      int
	MailSubjectFilter string
	MailSinceDays     int
	MailSenderClients map[string]string

	ListenerIntervalSec   int
	ListenerAutoReconcile bool
	ListenerAutoExport    bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		RegistryAPIBaseURL: getEnv("REGISTRY_API_BASE_URL", ""),
		RegistryAPIToken:   getEnv("REGISTRY_API_TOKEN", ""),
		RegistryRateRPS:    getEnvInt("REGISTRY_RATE_LIMIT_RPS", 5),
		RegistryRateBurst:  getEnvInt("REGISTRY_RATE_LIMIT_BURST", 1),
		RegistryTimeoutMs:  getEnvInt("REGISTRY_TIMEOUT_MS", 30000),

		MatchAutoThreshold:   getEnvFloat("MATCH_AUTO_THRESHOLD", 0.80),
		MatchReviewThreshold: getEnvFloat("MATCH_REVIEW_THRESHOLD", 0.50),
		AmountTolerance:      getEnvFloat("MATCH_AMOUNT_TOLERANCE", 0.10),
		DateWindowDays:       getEnvInt("MATCH_DATE_WINDOW_DAYS", 7),
		SkipSynced:           getEnvBool("RECONCILE_SKIP_SYNCED", false),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailLabel:         getEnv("MAIL_LABEL", "INBOX"),
		MailFetchMax:      getEnvInt("MAIL_FETCH_MAX", 20),
		MailSubjectFilter: getEnv("MAIL_SUBJECT_FILTER", ""),
		MailSinceDays:     getEnvInt("MAIL_SINCE_DAYS", 30),
		MailSenderClients: parseSenderClients(getEnv("MAIL_SENDER_CLIENTS", "")),

		ListenerIntervalSec:   getEnvInt("LISTENER_INTERVAL_SEC", 300),
		ListenerAutoReconcile: getEnvBool("LISTENER_AUTO_RECONCILE", false),
		ListenerAutoExport:    getEnvBool("LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// parseSenderClients parses "mail@host=taxid,other@host=taxid" into a map
// keyed by lowercased sender address.
func parseSenderClients(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 || idx == len(pair)-1 {
			continue
		}
		sender := strings.ToLower(strings.TrimSpace(pair[:idx]))
		taxID := strings.TrimSpace(pair[idx+1:])
		if sender != "" && taxID != "" {
			out[sender] = taxID
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
