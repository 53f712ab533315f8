package coordinator

import (
	"encoding/json"
	"net/http"
	"strconv"

	xferrors "github.com/platformforge/transfer-coordinator/infrastructure/errors"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as a structured ServiceError body (§10.2), falling
// back to a generic internal error for anything not already wrapped.
func writeError(w http.ResponseWriter, err error) {
	svcErr := xferrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = xferrors.Internal("unexpected error", err)
	}
	writeJSON(w, svcErr.HTTPStatus, svcErr)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func queryString(r *http.Request, key, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}
