package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"budgetlist/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON object from the body into dst. Unknown
// fields, trailing data and oversized bodies are rejected as invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", core.ErrInvalidInput)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", core.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON: %v", core.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", core.ErrInvalidInput)
	}
	return nil
}

// pathIDs returns the list id and, for item routes, the item id.
func pathIDs(r *http.Request) (listID, itemID string) {
	return r.PathValue("id"), r.PathValue("itemId")
}
