package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Config.Logging.Level") {
		t.Errorf("Expected namespace in error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_EmptyDataDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.DataDir = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for empty data_dir")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("Expected 'required' validation error, got: %v", err)
	}
}

func TestValidate_BackupKeep(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Backup.Keep = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for keep 0")
	}
}

func TestValidate_Schedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"", true},
		{"@every 6h", true},
		{"0 3 * * *", true},
		{"@hourly", true},
		{"0 3 * *", false},
		{"sometimes", false},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Backup.Schedule = tt.schedule

			err := Validate(cfg)
			if tt.valid && err != nil {
				t.Errorf("Expected %q to be valid, got: %v", tt.schedule, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected %q to be rejected", tt.schedule)
			}
		})
	}
}

func TestValidate_S3Mirror(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Backup.S3 = map[string]any{"bucket": "vault-backups"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for S3 mirror without region")
	}
	if !strings.HasPrefix(err.Error(), "backup.s3:") {
		t.Errorf("Expected backup.s3 prefix, got: %v", err)
	}

	cfg.Backup.S3["region"] = "eu-west-1"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected complete S3 mirror config to pass, got: %v", err)
	}
}

func TestValidate_InMemoryIndexRequiresIndex(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Index = IndexConfig{Enabled: false, InMemory: true}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for in-memory index while disabled")
	}
}

func TestValidate_NegativeMaxConcurrent(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Tasks.MaxConcurrent = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative max_concurrent")
	}
}
