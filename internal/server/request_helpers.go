package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const defaultRequestBodyLimitBytes = 1 << 20 // 1 MiB

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

func limitRequestBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	if maxBytes <= 0 {
		maxBytes = defaultRequestBodyLimitBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// decodeJSONBody reads exactly one JSON value into dst. Anything after the
// value other than whitespace is rejected.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	limitRequestBody(w, r, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return classifyBodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if isRequestBodyTooLarge(err) {
			return errBodyTooLarge
		}
		return errors.New("request body must hold a single json value")
	}
	return nil
}

func classifyBodyError(err error) error {
	switch {
	case isRequestBodyTooLarge(err):
		return errBodyTooLarge
	case errors.Is(err, io.EOF):
		return errEmptyBody
	default:
		return fmt.Errorf("decode json: %w", err)
	}
}

func isRequestBodyTooLarge(err error) bool {
	if errors.Is(err, errBodyTooLarge) {
		return true
	}
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
