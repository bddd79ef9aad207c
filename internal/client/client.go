// Package client talks to a filegate server over HTTP.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"filegate/pkg/api"
)

var (
	BaseURL = "http://localhost:3000" // -ldflags -X filegate/internal/client.BaseURL=<default URL>
)

const (
	configDir   = ".filegate" // inside the user's home directory
	baseURLFile = "base_url"
	tokenFile   = "token"
)

// configPath returns ~/.filegate/name, creating the directory when needed.
func configPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, configDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// LoadBaseURL sets BaseURL from FILEGATE_URL, or from ~/.filegate/base_url
// when the variable is unset. Without either the built-in default stays.
func LoadBaseURL() error {
	if env := os.Getenv("FILEGATE_URL"); env != "" {
		return setBaseURL(env)
	}

	path, err := configPath(baseURLFile)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return setBaseURL(string(raw))
}

// WriteBaseURL validates and stores the server URL for later runs.
func WriteBaseURL(raw string) error {
	if err := setBaseURL(raw); err != nil {
		return err
	}
	path, err := configPath(baseURLFile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(BaseURL+"\n"), 0o600)
}

func setBaseURL(raw string) error {
	// remove all \r or \n
	s := strings.ReplaceAll(raw, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")
	if _, err := url.ParseRequestURI(s); err != nil {
		return fmt.Errorf("invalid server url %q: %w", s, err)
	}
	BaseURL = s
	return nil
}

// ReadToken returns the stored token, or an empty string if not logged in.
func ReadToken() string {
	path, err := configPath(tokenFile)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func WriteToken(token string) error {
	path, err := configPath(tokenFile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func RemoveToken() error {
	path, err := configPath(tokenFile)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GetHTTPClient returns an HTTP client that respects proxy environment variables
// (HTTP_PROXY, HTTPS_PROXY, NO_PROXY)
func GetHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
}

func newRequest(method, route, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, BaseURL+route, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// responseError turns a non-2xx response into an error, preferring the
// server's JSON error list over the raw body.
func responseError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("server returned status: %s", resp.Status)
	}
	var e api.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && len(e.Errors) > 0 {
		return fmt.Errorf("server returned status: %s; error: %s", resp.Status, strings.Join(e.Errors, "; "))
	}
	return fmt.Errorf("server returned status: %s; error: %s", resp.Status, strings.TrimSpace(string(raw)))
}
