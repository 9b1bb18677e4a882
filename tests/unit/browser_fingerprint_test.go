package unit

import (
	"testing"

	rawhttp "github.com/arman-bd/httpmorph"
	"github.com/arman-bd/httpmorph/pkg/fingerprint"
)

// TestSenderDefaultProfileIsChrome131 tests that a freshly constructed
// Sender falls back to the chrome-131 fingerprint absent any override.
func TestSenderDefaultProfileIsChrome131(t *testing.T) {
	sender := rawhttp.NewSender()

	profile := sender.DefaultProfile()
	if profile == nil {
		t.Fatal("expected a non-nil default profile")
	}

	want, err := fingerprint.GetProfile("chrome-131")
	if err != nil {
		t.Fatalf("loading chrome-131: %v", err)
	}
	if profile.JA3() != want.JA3() {
		t.Fatalf("expected default profile JA3 %q, got %q", want.JA3(), profile.JA3())
	}
}

// TestSenderSetDefaultProfileOverrides tests that SetDefaultProfile changes
// what DefaultProfile subsequently returns.
func TestSenderSetDefaultProfileOverrides(t *testing.T) {
	sender := rawhttp.NewSender()

	firefox, err := fingerprint.GetProfile("firefox-122")
	if err != nil {
		t.Fatalf("loading firefox-122: %v", err)
	}

	sender.SetDefaultProfile(firefox)

	got := sender.DefaultProfile()
	if got == nil || got.JA3() != firefox.JA3() {
		t.Fatalf("expected overridden profile to be firefox-122")
	}
}
