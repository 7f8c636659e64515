package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "no env, defaults applied",
			env:  map[string]string{},
			want: &Config{
				DBURI:                "./data/cap-alerts.db",
				HTTPPort:             8080,
				LogLevel:             "info",
				JanitorIntervalHours: 24,
				RetentionDays:        30,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"DB_URI":                  "/tmp/alerts.db",
				"HTTP_PORT":               "9090",
				"LOG_LEVEL":               "debug",
				"JANITOR_INTERVAL_HOURS":  "6",
				"RETENTION_DAYS":          "7",
			},
			want: &Config{
				DBURI:                "/tmp/alerts.db",
				HTTPPort:             9090,
				LogLevel:             "debug",
				JanitorIntervalHours: 6,
				RetentionDays:        7,
			},
		},
		{
			name:    "invalid http port",
			env:     map[string]string{"HTTP_PORT": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "zero janitor interval rejected",
			env:     map[string]string{"JANITOR_INTERVAL_HOURS": "0"},
			wantErr: true,
		},
		{
			name:    "negative retention rejected",
			env:     map[string]string{"RETENTION_DAYS": "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"DB_URI", "HTTP_PORT", "LOG_LEVEL", "JANITOR_INTERVAL_HOURS", "RETENTION_DAYS"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
