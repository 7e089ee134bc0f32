package auxiliary

import "testing"

func TestValidateLaunchConfig(t *testing.T) {
	if err := ValidateLaunchConfig(false, false, true); err != nil {
		t.Fatalf("auxiliaryGdb disabled should never error, got %v", err)
	}
	if err := ValidateLaunchConfig(true, false, false); err == nil {
		t.Fatal("expected error when gdbAsync is false")
	}
	if err := ValidateLaunchConfig(true, true, true); err == nil {
		t.Fatal("expected error when gdbNonStop is true")
	}
	if err := ValidateLaunchConfig(true, true, false); err != nil {
		t.Fatalf("valid combination should not error, got %v", err)
	}
}
