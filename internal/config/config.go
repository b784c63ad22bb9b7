package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Store backends.
const (
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
)

// Transports and archivers.
const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"

	ArchiveIMAP = "imap"
	ArchiveS3   = "s3"
	ArchiveNone = "none"
)

// Mode stores.
const (
	ModeStoreFile  = "file"
	ModeStoreRedis = "redis"
)

type Config struct {
	// Store
	Store                 string `env:"STORE,default=sheets"`
	SpreadsheetID         string `env:"SPREADSHEET_ID"`
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE,default=credentials.json"`
	SheetsBaseURL         string `env:"SHEETS_BASE_URL,default=https://sheets.googleapis.com"`
	ContactsTab           string `env:"CONTACTS_TAB,default=Sheet1"`
	TemplatesTab          string `env:"TEMPLATES_TAB,default=Templates"`
	StoreMaxBatch         int    `env:"STORE_MAX_BATCH,default=5000"`
	DatabaseDSN           string `env:"DATABASE_DSN"`

	// Suppression
	SuppressionURL       string        `env:"SUPPRESSION_URL,required=true"`
	SuppressionTimeout   time.Duration `env:"SUPPRESSION_TIMEOUT,default=10s"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL,default=1h"`
	ReconcileMinInterval time.Duration `env:"RECONCILE_MIN_INTERVAL,default=10m"`
	ReconcileAfter       string        `env:"RECONCILE_AFTER,default=pass"`

	// Message
	FromEmail          string `env:"FROM_EMAIL,required=true"`
	FromName           string `env:"FROM_NAME"`
	TrackingBaseURL    string `env:"TRACKING_BASE_URL"`
	UnsubscribeBaseURL string `env:"UNSUBSCRIBE_BASE_URL"`
	EventURL           string `env:"EVENT_URL"`
	CTALabel           string `env:"CTA_LABEL,default=Book Your Visitor Ticket"`
	SignatureHTML      string `env:"SIGNATURE_HTML"`

	// Transport
	Transport    string        `env:"TRANSPORT,default=smtp"`
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT,default=587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT,default=30s"`

	AWSRegion           string `env:"AWS_REGION,default=eu-west-2"`
	AWSAccessKeyID      string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string `env:"AWS_SECRET_ACCESS_KEY"`
	SESConfigurationSet string `env:"SES_CONFIGURATION_SET"`

	SendRatePerSec int `env:"SEND_RATE_PER_SEC,default=0"`

	// Archive
	Archive            string        `env:"ARCHIVE,default=imap"`
	IMAPAddr           string        `env:"IMAP_ADDR"`
	IMAPUsername       string        `env:"IMAP_USERNAME"`
	IMAPPassword       string        `env:"IMAP_PASSWORD"`
	IMAPMailbox        string        `env:"IMAP_MAILBOX,default=INBOX.Sent"`
	IMAPTimeout        time.Duration `env:"IMAP_TIMEOUT,default=30s"`
	ArchiveS3Bucket    string        `env:"ARCHIVE_S3_BUCKET"`
	ArchiveS3Prefix    string        `env:"ARCHIVE_S3_PREFIX,default=sent"`
	ArchiveS3Endpoint  string        `env:"ARCHIVE_S3_ENDPOINT"`
	ArchiveS3PathStyle bool          `env:"ARCHIVE_S3_PATH_STYLE,default=false"`

	// Pass
	BatchSize         int           `env:"BATCH_SIZE,default=2000"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY,default=15"`
	BatchPause        time.Duration `env:"BATCH_PAUSE,default=30m"`
	StoreWriteSplit   int           `env:"STORE_WRITE_SPLIT,default=2"`
	Ordering          string        `env:"ORDERING,default=sequential"`
	AdvanceOnFailure  bool          `env:"ADVANCE_ON_FAILURE,default=false"`

	// Scheduling
	Timezone        string        `env:"TIMEZONE,default=Europe/London"`
	PollInterval    time.Duration `env:"POLL_INTERVAL,default=10m"`
	FallbackSleep   time.Duration `env:"FALLBACK_SLEEP,default=10m"`
	TimeWindow      bool          `env:"TIME_WINDOW,default=false"`
	TimeWindowStart string        `env:"TIME_WINDOW_START,default=11:00"`
	TimeWindowEnd   string        `env:"TIME_WINDOW_END,default=12:00"`
	OncePerDay      bool          `env:"ONCE_PER_DAY,default=false"`

	// Run state
	ModeStore    string        `env:"MODE_STORE,default=file"`
	ModeFile     string        `env:"MODE_FILE,default=data/ordering.yaml"`
	ModeRedisKey string        `env:"MODE_REDIS_KEY,default=outreach:ordering:direction"`
	RedisURL     string        `env:"REDIS_URL"`
	RunLock      bool          `env:"RUN_LOCK,default=false"`
	RunLockTTL   time.Duration `env:"RUN_LOCK_TTL,default=6h"`

	// Outcome events
	RabbitMQURL  string `env:"RABBITMQ_URL"`
	OutcomeQueue string `env:"OUTCOME_QUEUE,default=campaign.outcomes"`

	// Ops
	OpsPort   int    `env:"OPS_PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Archive = strings.ToLower(strings.TrimSpace(c.Archive))
	c.ModeStore = strings.ToLower(strings.TrimSpace(c.ModeStore))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate checks the cross-field requirements go-env tags cannot express.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store {
	case StoreSheets:
		if c.SpreadsheetID == "" {
			problems = append(problems, "SPREADSHEET_ID is required for STORE=sheets")
		}
	case StorePostgres:
		if c.DatabaseDSN == "" {
			problems = append(problems, "DATABASE_DSN is required for STORE=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE %q", c.Store))
	}

	switch c.Transport {
	case TransportSMTP:
		if c.SMTPHost == "" {
			problems = append(problems, "SMTP_HOST is required for TRANSPORT=smtp")
		}
	case TransportSES:
	default:
		problems = append(problems, fmt.Sprintf("unknown TRANSPORT %q", c.Transport))
	}

	switch c.Archive {
	case ArchiveIMAP:
		if c.IMAPAddr == "" {
			problems = append(problems, "IMAP_ADDR is required for ARCHIVE=imap")
		}
	case ArchiveS3:
		if c.ArchiveS3Bucket == "" {
			problems = append(problems, "ARCHIVE_S3_BUCKET is required for ARCHIVE=s3")
		}
	case ArchiveNone:
	default:
		problems = append(problems, fmt.Sprintf("unknown ARCHIVE %q", c.Archive))
	}

	switch c.ModeStore {
	case ModeStoreFile:
	case ModeStoreRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for MODE_STORE=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown MODE_STORE %q", c.ModeStore))
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		problems = append(problems, fmt.Sprintf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	if c.RunLock && c.RedisURL == "" {
		problems = append(problems, "REDIS_URL is required for RUN_LOCK=true")
	}
	if c.SendRatePerSec < 0 {
		problems = append(problems, "SEND_RATE_PER_SEC must not be negative")
	}
	if c.SendRatePerSec > 0 && c.RedisURL == "" {
		problems = append(problems, "REDIS_URL is required when SEND_RATE_PER_SEC is set")
	}
	if c.BatchSize <= 0 {
		problems = append(problems, "BATCH_SIZE must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		problems = append(problems, "WORKER_CONCURRENCY must be positive")
	}
	if c.StoreWriteSplit < 2 {
		problems = append(problems, "STORE_WRITE_SPLIT must be at least 2")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid TIMEZONE %q", c.Timezone))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
