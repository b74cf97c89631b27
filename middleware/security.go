package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"taskdeploy-backend/security"
)

// projectParams are the query parameters that end up in a project name.
var projectParams = []string{"name", "task", "nonce"}

// ValidateProjectParams rejects requests whose query carries traversal
// sequences, or project name parts a hosted repository could not be named
// after.
func ValidateProjectParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		for _, values := range query {
			for _, value := range values {
				if strings.Contains(value, "../") || strings.Contains(value, "..\\") {
					rejectParam(w, "invalid input: path traversal detected")
					return
				}
			}
		}
		for _, key := range projectParams {
			value := query.Get(key)
			if value == "" {
				continue
			}
			if _, err := security.SanitizeProjectName(value); err != nil {
				rejectParam(w, err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func rejectParam(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": msg,
	})
}
