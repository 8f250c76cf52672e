package browser

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.defaults()

	if cfg.MemoryLimit != 1<<30 {
		t.Errorf("MemoryLimit = %d, want 1GB", cfg.MemoryLimit)
	}
	if cfg.RecycleInterval != 4*time.Hour {
		t.Errorf("RecycleInterval = %v, want 4h", cfg.RecycleInterval)
	}
	if cfg.XvfbDisplay != ":99" {
		t.Errorf("XvfbDisplay = %q", cfg.XvfbDisplay)
	}
	if cfg.NavigateTimeout != 30*time.Second {
		t.Errorf("NavigateTimeout = %v", cfg.NavigateTimeout)
	}
	if cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true}

	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", false},
		{"Stylesheet", false},
		{"Document", false},
		{"XHR", false},
	}
	for _, tc := range cases {
		if got := shouldBlock(set, tc.resType); got != tc.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", tc.resType, got, tc.want)
		}
	}
}
