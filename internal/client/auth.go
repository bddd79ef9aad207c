package client

import (
	"encoding/json"
	"net/http"
)

// Account is the principal a token belongs to.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Owner string `json:"owner"`
}

// Me resolves token on the server.
func Me(token string) (*Account, error) {
	req, err := newRequest(http.MethodGet, "/api/auth/me", token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}
