package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBody caps request bodies read by ReadJSON and webhook intake.
const MaxBody = 1 << 20

// APIError is the body of every non-2xx response.
type APIError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v as {"success":true,"data":v}.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, envelope{Success: true, Data: v})
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details any) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// ReadJSON decodes a size-limited body into v. An empty body leaves v untouched.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
