package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUPPRESSION_URL", "https://example.com/unsubscribed")
	t.Setenv("FROM_EMAIL", "events@example.com")
	t.Setenv("SPREADSHEET_ID", "sheet-123")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("IMAP_ADDR", "imap.example.com:993")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store != StoreSheets {
		t.Errorf("Store = %s, want sheets", cfg.Store)
	}
	if cfg.BatchSize != 2000 {
		t.Errorf("BatchSize = %d, want 2000", cfg.BatchSize)
	}
	if cfg.WorkerConcurrency != 15 {
		t.Errorf("WorkerConcurrency = %d, want 15", cfg.WorkerConcurrency)
	}
	if cfg.BatchPause != 30*time.Minute {
		t.Errorf("BatchPause = %s, want 30m", cfg.BatchPause)
	}
	if cfg.PollInterval != 10*time.Minute {
		t.Errorf("PollInterval = %s, want 10m", cfg.PollInterval)
	}
	if cfg.ReconcileInterval != time.Hour {
		t.Errorf("ReconcileInterval = %s, want 1h", cfg.ReconcileInterval)
	}
	if cfg.SuppressionTimeout != 10*time.Second {
		t.Errorf("SuppressionTimeout = %s, want 10s", cfg.SuppressionTimeout)
	}
	if cfg.Timezone != "Europe/London" {
		t.Errorf("Timezone = %s, want Europe/London", cfg.Timezone)
	}
	if cfg.IMAPMailbox != "INBOX.Sent" {
		t.Errorf("IMAPMailbox = %s, want INBOX.Sent", cfg.IMAPMailbox)
	}
	if cfg.OpsPort != 8080 {
		t.Errorf("OpsPort = %d, want 8080", cfg.OpsPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %s, want json", cfg.LogFormat)
	}
	if cfg.TimeWindow || cfg.OncePerDay || cfg.AdvanceOnFailure {
		t.Error("boolean switches should default to false")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE", "Postgres")
	t.Setenv("DATABASE_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("TRANSPORT", "ses")
	t.Setenv("ARCHIVE", "s3")
	t.Setenv("ARCHIVE_S3_BUCKET", "outreach-archive")
	t.Setenv("BATCH_PAUSE", "90s")
	t.Setenv("TIME_WINDOW", "true")
	t.Setenv("ORDERING", "alternating")
	t.Setenv("MODE_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SEND_RATE_PER_SEC", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store != StorePostgres {
		t.Errorf("Store = %s, want postgres", cfg.Store)
	}
	if cfg.Transport != TransportSES || cfg.Archive != ArchiveS3 {
		t.Errorf("Transport/Archive = %s/%s, want ses/s3", cfg.Transport, cfg.Archive)
	}
	if cfg.BatchPause != 90*time.Second {
		t.Errorf("BatchPause = %s, want 90s", cfg.BatchPause)
	}
	if !cfg.TimeWindow {
		t.Error("TimeWindow should be true")
	}
	if cfg.SendRatePerSec != 5 {
		t.Errorf("SendRatePerSec = %d, want 5", cfg.SendRatePerSec)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("FROM_EMAIL", "events@example.com")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "sheets without id", env: map[string]string{"SPREADSHEET_ID": ""}, wantErr: "SPREADSHEET_ID"},
		{name: "postgres without dsn", env: map[string]string{"STORE": "postgres"}, wantErr: "DATABASE_DSN"},
		{name: "unknown store", env: map[string]string{"STORE": "excel"}, wantErr: "unknown STORE"},
		{name: "smtp without host", env: map[string]string{"SMTP_HOST": ""}, wantErr: "SMTP_HOST"},
		{name: "s3 without bucket", env: map[string]string{"ARCHIVE": "s3"}, wantErr: "ARCHIVE_S3_BUCKET"},
		{name: "redis mode store without url", env: map[string]string{"MODE_STORE": "redis"}, wantErr: "REDIS_URL"},
		{name: "run lock without url", env: map[string]string{"RUN_LOCK": "true"}, wantErr: "RUN_LOCK"},
		{name: "single write split", env: map[string]string{"STORE_WRITE_SPLIT": "1"}, wantErr: "STORE_WRITE_SPLIT"},
		{name: "unknown log format", env: map[string]string{"LOG_FORMAT": "xml"}, wantErr: "LOG_FORMAT"},
		{name: "bad timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}, wantErr: "TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ArchiveNone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IMAP_ADDR", "")
	t.Setenv("ARCHIVE", "none")

	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
