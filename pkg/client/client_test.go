package client

import (
	"crypto/tls"
	"testing"
)

func TestNewConfiguresDefaultProfile(t *testing.T) {
	c := New()

	p := c.DefaultProfile()
	if p == nil {
		t.Fatal("expected New to configure a default browser profile")
	}
	if p.JA3() == "" {
		t.Fatal("expected default profile to have a computed JA3 hash")
	}
}

func TestSetDefaultProfileOverrides(t *testing.T) {
	c := New()

	c.SetDefaultProfile(nil)
	if got := c.DefaultProfile(); got != nil {
		t.Fatalf("expected nil after SetDefaultProfile(nil), got %v", got)
	}
}

func TestHasExplicitTLSConfigDetectsOverrides(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want bool
	}{
		{"empty", Options{}, false},
		{"tls config set", Options{TLSConfig: &tls.Config{}}, true},
		{"cipher suites set", Options{CipherSuites: []uint16{tls.TLS_AES_128_GCM_SHA256}}, true},
		{"custom ca set", Options{CustomCACerts: [][]byte{[]byte("pem")}}, true},
		{"client cert pem set", Options{ClientCertPEM: []byte("pem")}, true},
		{"client cert file set", Options{ClientCertFile: "client.crt"}, true},
		{"explicit profile only", Options{Profile: nil}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasExplicitTLSConfig(tc.opts); got != tc.want {
				t.Errorf("hasExplicitTLSConfig(%+v) = %v, want %v", tc.opts, got, tc.want)
			}
		})
	}
}
