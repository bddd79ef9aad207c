// Package metadata encodes the tags attached to every stored object.
package metadata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Tag names as stored on the backend.
const (
	KeyFilename = "filename"
	KeySize     = "sizeinbytes"
	KeyLocation = "location"
)

// DefaultFilename is served when an object carries no usable filename.
const DefaultFilename = "download"

// Tags describe one uploaded file.
type Tags struct {
	Filename string
	Size     int64
	Location string
}

// Setter is the part of a backend that can replace an object's metadata.
type Setter interface {
	SetMeta(ctx context.Context, container, key string, meta map[string]string) error
}

// Encode renders tags as backend metadata. The filename is query-escaped so
// non-ASCII names survive header-based metadata stores.
func Encode(t Tags) map[string]string {
	return map[string]string{
		KeyFilename: url.QueryEscape(t.Filename),
		KeySize:     strconv.FormatInt(t.Size, 10),
		KeyLocation: t.Location,
	}
}

// Tag attaches t to the object at container/key.
func Tag(ctx context.Context, s Setter, container, key string, t Tags) error {
	if err := s.SetMeta(ctx, container, key, Encode(t)); err != nil {
		return fmt.Errorf("tag %s/%s: %w", container, key, err)
	}
	return nil
}

// Decode reads tags back. Missing or malformed values are left empty.
func Decode(meta map[string]string) Tags {
	t := Tags{
		Filename: Filename(meta),
		Location: lookup(meta, KeyLocation),
	}
	t.Size, _ = Size(meta)
	return t
}

// Filename returns the decoded filename, or DefaultFilename when absent.
func Filename(meta map[string]string) string {
	raw := lookup(meta, KeyFilename)
	if raw == "" {
		return DefaultFilename
	}
	name, err := url.QueryUnescape(raw)
	if err != nil {
		name = raw
	}
	if strings.TrimSpace(name) == "" {
		return DefaultFilename
	}
	return name
}

// Size returns the recorded size and whether it was present and valid.
func Size(meta map[string]string) (int64, bool) {
	n, err := strconv.ParseInt(lookup(meta, KeySize), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// lookup is case-insensitive; some S3 gateways return metadata keys capitalised.
func lookup(meta map[string]string, key string) string {
	if v, ok := meta[key]; ok {
		return v
	}
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
