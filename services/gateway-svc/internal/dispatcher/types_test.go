package dispatcher

import (
	"testing"

	"gateway/pkg/config"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		Selector: config.SelectorConfig{MaxRetries: 3},
		Admission: config.AdmissionConfig{
			ValidateProjectID:    true,
			OFACBlockedCountries: []string{"KP", "IR"},
		},
	}

	got := FromAppConfig(cfg)

	if got.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", got.MaxRetries)
	}
	if !got.ValidateProjectID {
		t.Error("ValidateProjectID = false, want true")
	}
	if len(got.BlockedCountries) != 2 || got.BlockedCountries[0] != "KP" {
		t.Errorf("BlockedCountries = %v, want [KP IR]", got.BlockedCountries)
	}
}

func TestFromAppConfig_ValidationDisabled(t *testing.T) {
	cfg := &config.Config{
		Selector:  config.SelectorConfig{MaxRetries: 1},
		Admission: config.AdmissionConfig{ValidateProjectID: false},
	}

	got := FromAppConfig(cfg)

	if got.ValidateProjectID {
		t.Error("ValidateProjectID = true, want false")
	}
}
