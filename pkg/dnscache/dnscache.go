// Package dnscache provides a TTL-bounded host->addresses cache used by
// the request state machine (pkg/transport resolves through its own
// net.Resolver and does not use it), so repeat requests to
// the same authority skip a fresh getaddrinfo round trip.
package dnscache

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"
)

const (
	// DefaultTTL matches spec.md §4.2's 5-minute cache lifetime.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity matches spec.md §4.2's 128-entry cap.
	DefaultCapacity = 128
)

type entry struct {
	addrs   []net.IPAddr
	expires time.Time
}

// Cache is a thread-safe, TTL-bounded DNS resolution cache keyed by
// "host:port". A single mutex guards the table, a leaf lock that is never
// held while calling out to the resolver or any other subsystem.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*entry
	order    []string // insertion order, for FIFO eviction
	resolver *net.Resolver
}

// New creates a Cache with the given TTL and capacity. A zero value for
// either falls back to the spec defaults.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*entry),
		resolver: net.DefaultResolver,
	}
}

// normalizeHost applies IDNA lookup normalization (case folding plus
// punycode for any non-ASCII labels) so "Example.COM" and a raw unicode
// hostname that maps to the same ASCII form share one cache entry. IP
// literals and already-ASCII names pass through ToASCII unchanged; if a
// host doesn't parse as a domain name at all, the lowercased original is
// used as the key instead of dropping the lookup.
func normalizeHost(host string) string {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return ascii
}

func key(host string, port int) string {
	return fmt.Sprintf("%s:%d", normalizeHost(host), port)
}

// Lookup returns a deep copy of the cached address list for (host, port),
// or (nil, false) on a miss or expired entry. Expired entries are never
// returned; a miss here always triggers a fresh resolution by the caller.
func (c *Cache) Lookup(host string, port int) ([]net.IPAddr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key(host, port)]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		return nil, false
	}

	out := make([]net.IPAddr, len(e.addrs))
	copy(out, e.addrs)
	return out, true
}

// Insert stores addrs for (host, port), evicting the oldest entry (FIFO)
// if the cache is already at capacity.
func (c *Cache) Insert(host string, port int, addrs []net.IPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(host, port)
	if _, exists := c.entries[k]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, k)
	}

	stored := make([]net.IPAddr, len(addrs))
	copy(stored, addrs)
	c.entries[k] = &entry{addrs: stored, expires: time.Now().Add(c.ttl)}
}

// CleanupExpired removes every entry whose TTL has elapsed.
func (c *Cache) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	kept := c.order[:0]
	for _, k := range c.order {
		if e, ok := c.entries[k]; ok && now.After(e.expires) {
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = nil
}

// Resolve looks up (host, port) in the cache, falling back to the
// resolver on a miss and populating the cache with the result. When a
// request goes through a proxy, callers pass the proxy's host here
// instead of the origin's, per spec.md §4.3's DNS algorithm.
func (c *Cache) Resolve(ctx context.Context, host string, port int) ([]net.IPAddr, error) {
	if addrs, ok := c.Lookup(host, port); ok {
		return addrs, nil
	}

	ips, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	c.Insert(host, port, ips)
	return ips, nil
}
