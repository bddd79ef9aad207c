// Package keys builds the storage paths under which uploaded objects live.
//
// An object uploaded by owner O in upload session S with id I is stored at
// "O/S_I". Backends configured with a shared container prefix that path with
// their location tag. Uploads made with an explicit path use it verbatim.
package keys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that cannot be turned into a safe path.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectKey identifies one stored object.
type ObjectKey struct {
	OwnerID   string
	SessionID string
	ObjectID  string
	// ExplicitPath, when set, is the full storage path and the other fields are ignored.
	ExplicitPath string
}

// NewObjectID returns a fresh random object id.
func NewObjectID() string {
	return uuid.NewString()
}

// NewSessionID returns a fresh random upload session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Build returns the storage path of an object.
func Build(ownerID, sessionID, objectID, explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	return ownerID + "/" + sessionID + "_" + objectID
}

// BuildNamespaced is Build prefixed with the location tag, for backends whose
// container is shared between locations. An explicit path is still used verbatim.
func BuildNamespaced(location, ownerID, sessionID, objectID, explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	return location + "/" + Build(ownerID, sessionID, objectID, "")
}

// Path is Build applied to k.
func (k ObjectKey) Path() string {
	return Build(k.OwnerID, k.SessionID, k.ObjectID, k.ExplicitPath)
}

// Validate rejects keys whose parts could escape their place in the path.
func (k ObjectKey) Validate() error {
	if k.ExplicitPath != "" {
		return ValidatePath(k.ExplicitPath)
	}
	for _, part := range []struct{ name, value string }{
		{"owner id", k.OwnerID},
		{"session id", k.SessionID},
		{"object id", k.ObjectID},
	} {
		if err := validateSegment(part.value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidKey, part.name, err)
		}
	}
	return nil
}

// ValidatePath checks an explicit storage path segment by segment.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidKey)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidKey, path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "\\\x00") {
			return fmt.Errorf("%w: bad segment in %q", ErrInvalidKey, path)
		}
	}
	return nil
}

func validateSegment(s string) error {
	switch {
	case s == "":
		return errors.New("empty")
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("%q contains a separator", s)
	case strings.Contains(s, ".."):
		return fmt.Errorf("%q contains ..", s)
	}
	return nil
}

// Parse splits a path produced by Build back into its parts. It reports false
// for paths that do not follow the "owner/session_object" shape.
func Parse(path string) (ObjectKey, bool) {
	owner, rest, ok := strings.Cut(path, "/")
	if !ok || owner == "" || strings.Contains(rest, "/") {
		return ObjectKey{}, false
	}
	session, objectID, ok := strings.Cut(rest, "_")
	if !ok || session == "" || objectID == "" {
		return ObjectKey{}, false
	}
	return ObjectKey{OwnerID: owner, SessionID: session, ObjectID: objectID}, true
}

// ParseNamespaced strips the location prefix written by BuildNamespaced and parses the rest.
func ParseNamespaced(location, path string) (ObjectKey, bool) {
	rest, ok := strings.CutPrefix(path, location+"/")
	if !ok {
		return ObjectKey{}, false
	}
	return Parse(rest)
}
