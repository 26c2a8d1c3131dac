package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// DecodeJSON reads a single JSON object from the request body. An empty body
// decodes to the zero value.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// BadJSON reports a body that could not be decoded.
func BadJSON(w http.ResponseWriter, requestID string, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		FailValidation(w, requestID, []ValidationIssue{{Field: "body", Reason: "request body too large"}})
		return
	}
	FailValidation(w, requestID, []ValidationIssue{{Field: "body", Reason: strings.TrimPrefix(err.Error(), "json: ")}})
}
