// Package handlers provides HTTP handlers for the Answer Engine API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/answerline/answer-engine/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error onto an HTTP status and a {"detail": ...}
// body, matching what channel clients expect.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.HTTPStatus(err), map[string]string{
		"detail": domain.Detail(err),
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
