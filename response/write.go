package response

import (
	"encoding/json"
	"net/http"
)

// V is the envelope for all API responses
type V struct {
	Success  bool        `json:"success"`
	Error    string      `json:"error,omitempty"`
	Messages []string    `json:"messages,omitempty"`
	Result   interface{} `json:"result,omitempty"`
}

// WriteResponse will serialize result into the response envelope with HTTP 200
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(V{
		Success: true,
		Result:  result,
	})
}

// WriteError will serialize an Error with its status code into the response envelope
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(V{
		Success:  false,
		Error:    e.Message,
		Messages: e.Messages,
		Result:   e.Result,
	})
}
