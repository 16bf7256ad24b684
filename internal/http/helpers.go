package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"txnstats/internal/analytics"
)

const maxTopLimit = 100

var (
	errLimitNotInteger = errors.New("limit must be an integer")
	errLimitNegative   = errors.New("limit must not be negative")
	errLimitTooLarge   = errors.New("limit must be at most " + strconv.Itoa(maxTopLimit))
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v before writing the header, so a value that cannot be
// encoded becomes a 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(errorResponse{Error: "response encoding failed"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// parseLimit reads ?limit=, defaulting to the top-three size.
func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return analytics.Top3, nil
	}
	n, err := strconv.Atoi(v)
	switch {
	case err != nil:
		return 0, errLimitNotInteger
	case n < 0:
		return 0, errLimitNegative
	case n > maxTopLimit:
		return 0, errLimitTooLarge
	}
	return n, nil
}

// clientName returns the {name} path segment, already unescaped by the mux.
// Names match exactly, so surrounding whitespace is kept.
func clientName(r *http.Request) string {
	return r.PathValue("name")
}
