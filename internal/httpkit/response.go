package httpkit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the JSON body of every failure response. Error is always a
// plain string.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Code: code})
}

// WritePNG sends a complete image in one write. Content-Length is always the
// exact byte length of img.
func WritePNG(w http.ResponseWriter, img []byte) error {
	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(img)))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(img)
	return err
}
