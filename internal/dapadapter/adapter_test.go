package dapadapter

import "testing"

func TestConsumeTransientStopIsOneShot(t *testing.T) {
	s := &Session{stopCh: make(chan struct{})}

	if s.consumeTransientStop() {
		t.Fatal("expected no transient stop flagged yet")
	}

	s.markTransientStop()
	if !s.consumeTransientStop() {
		t.Fatal("expected the marked transient stop to be reported once")
	}
	if s.consumeTransientStop() {
		t.Fatal("expected consumeTransientStop to clear the flag after reporting it")
	}
}
