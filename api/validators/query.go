package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
)

func fieldError(field, message string, extra map[string]any) error {
	details := map[string]any{"field": field}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads an optional integer in [lo, hi], returning def when the
// parameter is absent.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := query(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, key+" must be an integer", nil)
	}
	if n < lo || n > hi {
		return 0, fieldError(key, key+" is out of range", map[string]any{"min": lo, "max": hi})
	}
	return n, nil
}

func RequireQueryString(r *http.Request, key string) (string, error) {
	if raw := query(r, key); raw != "" {
		return raw, nil
	}
	return "", fieldError(key, key+" is required", nil)
}

// ParseUUID validates an identifier taken from the path or query.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fieldError(field, field+" must be a uuid", nil)
	}
	return id, nil
}
