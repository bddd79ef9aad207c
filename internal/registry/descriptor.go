package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidDescriptor is returned for connection descriptors that cannot be used.
var ErrInvalidDescriptor = errors.New("invalid connection descriptor")

// Connection is a parsed connection descriptor such as
// "s3://KEY:SECRET@minio:9000?container=uploads".
type Connection struct {
	Raw string
	URL *url.URL
}

// ParseConnection parses raw and checks that its scheme has a backend.
func ParseConnection(raw string) (Connection, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Connection{}, fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Connection{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if _, ok := openers[u.Scheme]; !ok {
		return Connection{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDescriptor, u.Scheme)
	}
	if u.Host == "" && u.Path == "" && u.Opaque == "" {
		return Connection{}, fmt.Errorf("%w: missing target", ErrInvalidDescriptor)
	}
	return Connection{Raw: raw, URL: u}, nil
}

// Scheme returns the lowercase URI scheme.
func (c Connection) Scheme() string {
	if c.URL == nil {
		return ""
	}
	return c.URL.Scheme
}

// SharedContainer reports the container named by "?container=", if any.
func (c Connection) SharedContainer() (string, bool) {
	if c.URL == nil {
		return "", false
	}
	name := c.URL.Query().Get("container")
	return name, name != ""
}

// Param returns a query parameter, or def when unset.
func (c Connection) Param(name, def string) string {
	if c.URL == nil {
		return def
	}
	if v := c.URL.Query().Get(name); v != "" {
		return v
	}
	return def
}

// Target is host and path joined, the location a file-like backend points at.
func (c Connection) Target() string {
	if c.URL == nil {
		return ""
	}
	if c.URL.Opaque != "" {
		return c.URL.Opaque
	}
	return c.URL.Host + c.URL.Path
}

// Redacted hides credentials for logging.
func (c Connection) Redacted() string {
	if c.URL == nil {
		return ""
	}
	u := *c.URL
	q := u.Query()
	for _, secret := range []string{"authToken", "secret", "password"} {
		if q.Has(secret) {
			q.Set(secret, "xxxxx")
		}
	}
	u.RawQuery = q.Encode()
	return u.Redacted()
}

// NormalizeLocation lowercases a location tag and drops all whitespace, so
// "West Europe" becomes "westeurope". It reports false for tags that end up
// empty or contain a slash.
func NormalizeLocation(tag string) (string, bool) {
	tag = strings.ToLower(strings.Join(strings.Fields(tag), ""))
	if tag == "" || strings.ContainsRune(tag, '/') {
		return "", false
	}
	return tag, true
}

// BackendDescriptor is one configured backend.
type BackendDescriptor struct {
	LocationTag string
	Connection  Connection
	IsPrimary   bool
}

// Config is the raw backend configuration.
type Config struct {
	// Location tags the primary backend.
	Location string
	// Primary is the primary connection descriptor.
	Primary string
	// Secondaries is a comma-separated list of "location->descriptor" pairs.
	Secondaries string
}

// SkippedEntry explains why a secondary entry was ignored.
type SkippedEntry struct {
	Entry  string
	Reason string
}

// ParseSecondaries parses "loc1->desc1,loc2->desc2". Malformed pairs are
// reported in skipped and do not stop later pairs from being used.
func ParseSecondaries(s string) (descs []BackendDescriptor, skipped []SkippedEntry) {
	seen := map[string]bool{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, "->")
		if len(parts) != 2 {
			skipped = append(skipped, SkippedEntry{Entry: redactEntry(entry), Reason: "expected location->descriptor"})
			continue
		}
		tag, ok := NormalizeLocation(parts[0])
		if !ok {
			skipped = append(skipped, SkippedEntry{Entry: redactEntry(entry), Reason: "invalid location"})
			continue
		}
		if seen[tag] {
			skipped = append(skipped, SkippedEntry{Entry: tag, Reason: "duplicate location"})
			continue
		}
		conn, err := ParseConnection(parts[1])
		if err != nil {
			skipped = append(skipped, SkippedEntry{Entry: tag, Reason: err.Error()})
			continue
		}

		seen[tag] = true
		descs = append(descs, BackendDescriptor{LocationTag: tag, Connection: conn})
	}
	return descs, skipped
}

// Describe turns cfg into the ordered descriptor list, primary first.
// Secondaries reusing the primary's location are skipped.
func Describe(cfg Config) ([]BackendDescriptor, []SkippedEntry, error) {
	tag, ok := NormalizeLocation(cfg.Location)
	if !ok {
		return nil, nil, fmt.Errorf("primary location %q is invalid", cfg.Location)
	}
	conn, err := ParseConnection(cfg.Primary)
	if err != nil {
		return nil, nil, fmt.Errorf("primary backend %s: %w", tag, err)
	}

	descs := []BackendDescriptor{{LocationTag: tag, Connection: conn, IsPrimary: true}}
	secondaries, skipped := ParseSecondaries(cfg.Secondaries)
	for _, d := range secondaries {
		if d.LocationTag == tag {
			skipped = append(skipped, SkippedEntry{Entry: tag, Reason: "duplicate location"})
			continue
		}
		descs = append(descs, d)
	}
	return descs, skipped, nil
}

// redactEntry keeps the location part of a malformed entry out of the
// credentials that may follow it.
func redactEntry(entry string) string {
	if i := strings.Index(entry, "->"); i >= 0 {
		return entry[:i] + "->…"
	}
	if len(entry) > 8 {
		return entry[:8] + "…"
	}
	return entry
}
