package fingerprint

import "testing"

func TestJA3Deterministic(t *testing.T) {
	p := Chrome131()

	first := p.JA3()
	second := p.JA3()
	if first != second {
		t.Fatalf("expected deterministic JA3, got %q then %q", first, second)
	}

	if len(first) != 32 {
		t.Fatalf("expected 32-hex-char MD5 digest, got %d chars: %q", len(first), first)
	}
}

func TestJA3DiffersAcrossProfiles(t *testing.T) {
	chrome := Chrome131().JA3()
	firefox := Firefox122().JA3()

	if chrome == firefox {
		t.Fatalf("expected distinct JA3 for distinct profiles")
	}
}

func TestJA3StripsGreaseFromCipherList(t *testing.T) {
	p := Chrome131()
	if !p.GREASE {
		t.Fatalf("expected chrome-131 profile to enable GREASE")
	}

	// GREASE values must never leak into the hashed cipher/extension lists,
	// otherwise JA3 could not match across connections with different
	// randomly-chosen GREASE values.
	if joinDash(u16s(p.CipherSuites)) == "" {
		t.Fatalf("expected non-empty cipher list")
	}
	for _, c := range p.CipherSuites {
		if isGrease(uint32(c)) {
			t.Fatalf("profile cipher list should not itself store a GREASE entry: %d", c)
		}
	}

	// A GREASE cipher placed on the wire must drop out of the JA3 cipher field.
	withGrease := append([]uint16{greaseCipher}, p.CipherSuites...)
	if got, want := joinDash(u16s(withGrease)), joinDash(u16s(p.CipherSuites)); got != want {
		t.Fatalf("expected GREASE cipher stripped from JA3 list, got %q want %q", got, want)
	}
}

func TestGetProfileUnknown(t *testing.T) {
	if _, err := GetProfile("netscape-navigator"); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestListProfilesIncludesMinimumSet(t *testing.T) {
	want := []string{"chrome-131", "chrome-124", "firefox-122", "safari-17", "edge-122"}
	got := map[string]bool{}
	for _, name := range ListProfiles() {
		got[name] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Fatalf("expected built-in profile %q", name)
		}
	}
}

func TestBuildClientHelloSpecOrdersExtensions(t *testing.T) {
	p := Chrome131()
	spec, err := BuildClientHelloSpec(p)
	if err != nil {
		t.Fatalf("BuildClientHelloSpec: %v", err)
	}

	// GREASE cipher leads the cipher list, GREASE extension leads the
	// extension list, matching modern Chrome's wire shape.
	if spec.CipherSuites[0] != greaseCipher {
		t.Fatalf("expected leading GREASE cipher, got %d", spec.CipherSuites[0])
	}
	if len(spec.Extensions) == 0 {
		t.Fatalf("expected non-empty extension list")
	}
}
