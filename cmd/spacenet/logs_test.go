package main

import (
	"testing"
	"time"
)

func TestParseTimeSpec(t *testing.T) {
	now := time.Date(2024, 10, 27, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		spec string
		want time.Time
	}{
		{"30m", now.Add(-30 * time.Minute)},
		{"1h30m", now.Add(-90 * time.Minute)},
		{"2d", now.Add(-48 * time.Hour)},
		{"1w", now.Add(-7 * 24 * time.Hour)},
		{"2024-10-26T10:00:00Z", time.Date(2024, 10, 26, 10, 0, 0, 0, time.UTC)},
		{"2024-10-26 10:00:00", time.Date(2024, 10, 26, 10, 0, 0, 0, time.Local)},
		{"2024-10-26", time.Date(2024, 10, 26, 0, 0, 0, 0, time.Local)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseTimeSpec(tt.spec, now)
			if err != nil {
				t.Fatalf("parseTimeSpec(%q) failed: %v", tt.spec, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimeSpec(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "yesterday", "-1h", "xd", "2024-13-40"} {
		if _, err := parseTimeSpec(bad, now); err == nil {
			t.Errorf("parseTimeSpec(%q) should fail", bad)
		}
	}
}
