package domain

import (
	"testing"
	"time"
)

func TestTrustedDevice_IsValid(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		d    *TrustedDevice
		want bool
	}{
		{"nil", nil, false},
		{"active unexpired", &TrustedDevice{Active: true, ExpiresAt: now.Add(time.Hour)}, true},
		{"inactive", &TrustedDevice{Active: false, ExpiresAt: now.Add(time.Hour)}, false},
		{"expired", &TrustedDevice{Active: true, ExpiresAt: now.Add(-time.Second)}, false},
		{"expires now", &TrustedDevice{Active: true, ExpiresAt: now}, false},
	}
	for _, tt := range tests {
		if got := tt.d.IsValid(now); got != tt.want {
			t.Errorf("%s: IsValid = %v, want %v", tt.name, got, tt.want)
		}
	}
}
