package handlers

import (
	"encoding/json"
	"net/http"

	"suljari/internal/apperr"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   *errBody `json:"error,omitempty"`
}

type errBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// respond writes a success envelope. A nil data still marshals, so bare
// acknowledgements come back as {"success": true}.
func (h *Handler) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		h.log.Errorw("response encode failed", "error", err)
	}
}

// respondErr maps the error kind onto a status code and writes the failure
// envelope. Internal errors reach the client as a generic message only; the
// cause goes to the log.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)

	message := err.Error()
	if kind == apperr.KindInternal {
		h.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	encodeErr := json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &errBody{Kind: string(kind), Message: message},
	})
	if encodeErr != nil {
		h.log.Errorw("error response encode failed", "error", encodeErr)
	}
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalidState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decode reads the request body into v. Malformed JSON surfaces as
// invalidArgument so the envelope mapping stays uniform.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidArgument("malformed request body")
	}
	return nil
}
