package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleUser        Role = "user"
	RoleApplication Role = "application"
)

// Principal is a caller known to the gateway.
type Principal struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Role      Role   `yaml:"role" json:"role"`
	TokenHash string `yaml:"token_hash" json:"-"`
}

// Owner is the id uploads are filed under: the user id for users and the
// application name for applications.
func (p Principal) Owner() string {
	if p.Role == RoleApplication {
		return p.Name
	}
	return p.ID
}

type principalsFile struct {
	Principals []Principal `yaml:"principals"`
}

// TokenStore resolves bearer tokens to principals.
type TokenStore struct {
	principals []Principal
}

// LoadPrincipals reads a YAML file of the form
//
//	principals:
//	  - id: 42
//	    name: alice
//	    role: user
//	    token_hash: $2a$10$...
func LoadPrincipals(path string) (*TokenStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read principals: %w", err)
	}
	var file principalsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse principals %s: %w", path, err)
	}
	return NewTokenStore(file.Principals)
}

func NewTokenStore(principals []Principal) (*TokenStore, error) {
	seen := map[string]bool{}
	for i, p := range principals {
		p.Role = Role(strings.ToLower(string(p.Role)))
		switch p.Role {
		case RoleUser, RoleApplication:
		default:
			return nil, fmt.Errorf("principal %q: unknown role %q", p.Name, p.Role)
		}
		if p.Owner() == "" {
			return nil, fmt.Errorf("principal #%d has no id or name", i+1)
		}
		if p.TokenHash == "" {
			return nil, fmt.Errorf("principal %q has no token_hash", p.Owner())
		}
		if seen[p.Owner()] {
			return nil, fmt.Errorf("principal %q is listed twice", p.Owner())
		}
		seen[p.Owner()] = true
		principals[i] = p
	}
	return &TokenStore{principals: principals}, nil
}

// Resolve finds the principal whose token hash matches token.
func (s *TokenStore) Resolve(token string) (Principal, bool) {
	if s == nil || token == "" {
		return Principal{}, false
	}
	for _, p := range s.principals {
		if checkToken(token, p.TokenHash) {
			return p, true
		}
	}
	return Principal{}, false
}

// Len is the number of known principals.
func (s *TokenStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.principals)
}

// HashToken hashes a plain text token for the principals file.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// compare a plain text token with a hashed token
func checkToken(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
