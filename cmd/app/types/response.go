package types

import (
	"io"
	"net/http"
)

// Response is a plain-text reply. Message is written on success, Error otherwise.
type Response struct {
	Code    int
	Message string
	Error   string
}

func Success(message string) *Response {
	return &Response{Code: http.StatusOK, Message: message}
}

func MethodNotAllowed() *Response {
	return &Response{Code: http.StatusMethodNotAllowed, Error: "method not allowed"}
}

func InternalError(err error) *Response {
	return &Response{Code: http.StatusInternalServerError, Error: err.Error()}
}

func (r *Response) Render(w http.ResponseWriter, _ *http.Request) error {
	body := r.Message
	if r.Error != "" {
		body = r.Error
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(r.Code)
	_, err := io.WriteString(w, body)
	return err
}
