// Package auth authenticates callers with bearer tokens checked against a
// principals file.
package auth

import (
	"encoding/json"
	"net/http"
)

// Me returns the authenticated principal.
// Endpoint: GET /api/auth/me
func Me(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		Unauthorized(w, "unauthorized")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Principal
		Owner string `json:"owner"`
	}{p, p.Owner()})
}
