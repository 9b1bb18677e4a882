package unit

import (
	"crypto/tls"
	"testing"

	"github.com/arman-bd/httpmorph"
)

// TestProtocolDetectionWithProxy validates that Protocol setting is respected when proxy is configured
func TestProtocolDetectionWithProxy(t *testing.T) {
	// Create a simple HTTP/1.1 request
	request := []byte("GET /test HTTP/1.1\r\nHost: example.com\r\n\r\n")

	tests := []struct {
		name             string
		protocol         string
		tlsNextProtos    []string
		expectedProtocol string // Expected protocol to be used
	}{
		{
			name:             "Explicit HTTP/1.1 with proxy",
			protocol:         "http/1.1",
			tlsNextProtos:    []string{"http/1.1"},
			expectedProtocol: "http/1.1",
		},
		{
			name:             "Explicit HTTP/1.1 without NextProtos",
			protocol:         "http/1.1",
			tlsNextProtos:    nil,
			expectedProtocol: "http/1.1",
		},
		{
			name:             "Explicit HTTP/2 with proxy",
			protocol:         "http/2",
			tlsNextProtos:    []string{"h2"},
			expectedProtocol: "http/2",
		},
		{
			name:             "No protocol specified - should default to HTTP/1.1",
			protocol:         "",
			tlsNextProtos:    nil,
			expectedProtocol: "http/1.1",
		},
		{
			name:             "NextProtos with http/1.1 only - Protocol not specified",
			protocol:         "",
			tlsNextProtos:    []string{"http/1.1"},
			expectedProtocol: "http/1.1", // Should respect NextProtos
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := rawhttp.NewSender()

			// Setup options with proxy
			opts := rawhttp.Options{
				Scheme:   "https",
				Host:     "example.com",
				Port:     443,
				Protocol: tt.protocol,
				Proxy: &rawhttp.ProxyConfig{
					Type: "http",
					Host: "proxy.example.com",
					Port: 8080,
				},
				InsecureTLS: true, // Skip cert verification for testing
			}

			// Set TLS config if NextProtos is specified
			if tt.tlsNextProtos != nil {
				opts.TLSConfig = &tls.Config{
					NextProtos:         tt.tlsNextProtos,
					InsecureSkipVerify: true,
				}
			}

			// We can't actually execute the request without a real proxy,
			// but we can verify the protocol detection logic
			// The detectProtocol method in httpmorph.go should be tested here

			// For now, just verify that the options are set correctly
			if opts.Protocol != tt.protocol {
				t.Errorf("Protocol mismatch: got %s, want %s", opts.Protocol, tt.protocol)
			}

			if tt.tlsNextProtos != nil && opts.TLSConfig != nil {
				if len(opts.TLSConfig.NextProtos) != len(tt.tlsNextProtos) {
					t.Errorf("NextProtos length mismatch: got %d, want %d",
						len(opts.TLSConfig.NextProtos), len(tt.tlsNextProtos))
				}
			}

			// Note: We're documenting the expected behavior here
			// The actual protocol selection happens in Sender.Do() -> detectProtocol()
			// If Protocol is set, it should be respected regardless of proxy configuration
			t.Logf("Test case: %s", tt.name)
			t.Logf("  Protocol: %s", opts.Protocol)
			t.Logf("  Expected: %s", tt.expectedProtocol)
			t.Logf("  Proxy: %s:%d", opts.Proxy.Host, opts.Proxy.Port)

			// The actual behavior verification would require integration testing
			// with a real proxy server, which is beyond unit test scope
			_ = sender
			_ = request
		})
	}
}

// TestHTTP2TransportNextProtosRespect validates that HTTP/2 transport respects user's NextProtos
func TestHTTP2TransportNextProtosRespect(t *testing.T) {
	tests := []struct {
		name            string
		tlsNextProtos   []string
		expectH2Added   bool
		description     string
	}{
		{
			name:            "Empty NextProtos - should add h2 and http/1.1",
			tlsNextProtos:   nil,
			expectH2Added:   true,
			description:     "When NextProtos is empty, HTTP/2 transport should add default protocols",
		},
		{
			name:            "NextProtos with h2 already - should not modify",
			tlsNextProtos:   []string{"h2", "http/1.1"},
			expectH2Added:   false,
			description:     "When h2 is already present, should not modify NextProtos",
		},
		{
			name:            "NextProtos with http/1.1 only - ISSUE: currently adds h2",
			tlsNextProtos:   []string{"http/1.1"},
			expectH2Added:   true,
			description:     "ISSUE: When user explicitly sets http/1.1 only, HTTP/2 transport currently adds h2 anyway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create TLS config
			var tlsConfig *tls.Config
			if tt.tlsNextProtos != nil {
				tlsConfig = &tls.Config{
					NextProtos:         tt.tlsNextProtos,
					InsecureSkipVerify: true,
				}
			}

			// Document the current behavior
			t.Logf("Test: %s", tt.name)
			t.Logf("Description: %s", tt.description)
			if tlsConfig != nil {
				t.Logf("Input NextProtos: %v", tlsConfig.NextProtos)
			} else {
				t.Logf("Input NextProtos: nil")
			}

			// Note: The actual modification happens in pkg/http2/transport.go -> connectTLS()
			// Its NextProtos handling shows the problematic behavior:
			// if len(tlsConfig.NextProtos) == 0 {
			//     tlsConfig.NextProtos = []string{"h2", "http/1.1"}
			// } else {
			//     // Check if h2 is already present
			//     hasH2 := false
			//     for _, proto := range tlsConfig.NextProtos {
			//         if proto == "h2" {
			//             hasH2 = true
			//             break
			//         }
			//     }
			//     if !hasH2 {
			//         // Prepend h2 to the list - THIS IS THE ISSUE
			//         tlsConfig.NextProtos = append([]string{"h2"}, tlsConfig.NextProtos...)
			//     }
			// }

			// This test documents the issue but doesn't execute the actual code
			// The fix should:
			// 1. Respect user's NextProtos when explicitly set
			// 2. OR automatically detect that http/1.1 is desired and switch to HTTP/1.1 client
		})
	}
}

// TestProxyProtocolRecommendation documents the recommended approach
func TestProxyProtocolRecommendation(t *testing.T) {
	t.Log("=== RECOMMENDATION FOR PROXY USAGE ===")
	t.Log("")
	t.Log("When using upstream proxy, explicitly set Protocol:")
	t.Log("")
	t.Log("✅ CORRECT APPROACH:")
	t.Log("  opts := rawhttp.Options{")
	t.Log("    Protocol: \"http/1.1\",  // Explicitly specify protocol")
	t.Log("    TLSConfig: &tls.Config{")
	t.Log("      NextProtos: []string{\"http/1.1\"},")
	t.Log("    },")
	t.Log("    Proxy: &rawhttp.ProxyConfig{")
	t.Log("      Type: \"http\",")
	t.Log("      Host: \"proxy.example.com\",")
	t.Log("      Port: 8080,")
	t.Log("    },")
	t.Log("  }")
	t.Log("")
	t.Log("❌ INCORRECT APPROACH:")
	t.Log("  opts := rawhttp.Options{")
	t.Log("    // Protocol not specified - may default to HTTP/2 detection")
	t.Log("    TLSConfig: &tls.Config{")
	t.Log("      NextProtos: []string{\"http/1.1\"}, // This alone is not enough!")
	t.Log("    },")
	t.Log("    Proxy: &rawhttp.ProxyConfig{...},")
	t.Log("  }")
	t.Log("")
	t.Log("WHY: The Protocol field determines which client to use (HTTP/1.1 or HTTP/2)")
	t.Log("     TLSConfig.NextProtos only affects ALPN negotiation within that client")
	t.Log("")
}
