package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentrail/core/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps an error's errs.Kind to an HTTP status and writes a JSON
// body. Errors with no recognized Kind fall back to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := errs.KindOf(err)

	switch kind {
	case errs.KindAuth:
		status = http.StatusUnauthorized
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindMissingInput, errs.KindConfig:
		status = http.StatusBadRequest
	case errs.KindQuota, errs.KindRateLimit:
		status = http.StatusTooManyRequests
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	case errs.KindUpstream, errs.KindToolStatus:
		status = http.StatusBadGateway
	case errs.KindCancelled:
		status = http.StatusConflict
	}

	writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(kind)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
