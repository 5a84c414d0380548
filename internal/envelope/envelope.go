// Package envelope unwraps the `{"data": ...}` wrapper every upstream
// response uses and decodes the payload into a typed record.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

const snippetLimit = 100

// Normalize decodes the payload of an upstream envelope into T.
// Every rejected payload is logged to slog.Default().
func Normalize[T any](raw []byte) (T, error) {
	return NormalizeWith[T](nil, raw)
}

// NormalizeWith is Normalize with an explicit logger for diagnostics.
//
// When the payload is an object whose `content` member is itself an object,
// the member is replaced by the compact JSON text of that object before
// decoding, so a string `content` field in T always receives a string.
func NormalizeWith[T any](logger *slog.Logger, raw []byte) (T, error) {
	var zero T

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		if !json.Valid(raw) {
			return zero, fail(logger, KindMalformed, raw, err)
		}
		// valid JSON, but not an object: there is no envelope to open
		return zero, fail(logger, KindMissingEnvelope, raw, fmt.Errorf("payload is not an object"))
	}

	data, ok := top["data"]
	if !ok {
		return zero, fail(logger, KindMissingEnvelope, raw, nil)
	}

	data, err := flattenContent(data)
	if err != nil {
		return zero, fail(logger, KindSchemaMismatch, data, err)
	}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return zero, fail(logger, KindSchemaMismatch, data, fmt.Errorf("data is null"))
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fail(logger, KindSchemaMismatch, data, err)
	}
	return out, nil
}

// fail builds the ParseError for kind and logs it once.
func fail(logger *slog.Logger, kind Kind, payload []byte, cause error) error {
	if logger == nil {
		logger = slog.Default()
	}
	perr := &ParseError{Kind: kind, Snippet: snippet(payload), Cause: cause}
	logger.Warn("envelope payload rejected",
		"component", "envelope",
		"kind", kind.String(),
		"error", perr.Error(),
		"snippet", perr.Snippet,
	)
	return perr
}

// snippet returns at most snippetLimit runes of b for diagnostics.
func snippet(b []byte) string {
	s := string(b)
	n := 0
	for i := range s {
		if n == snippetLimit {
			return s[:i]
		}
		n++
	}
	return s
}
