// Package patch layers user edits over upstream-sourced JSON documents.
//
// Patches follow RFC 7396 JSON merge patch semantics: object members merge
// recursively, null deletes a member, any other value replaces it. The raw
// document is never rewritten by an edit; the effective document is always
// recomputed as MergePatch(raw, patch).
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Empty is the identity patch.
var Empty = []byte("{}")

func orEmpty(doc []byte) []byte {
	if len(bytes.TrimSpace(doc)) == 0 {
		return Empty
	}
	return doc
}

// MergePatch applies patch to base. A nil or empty patch leaves base
// unchanged.
func MergePatch(base, patch []byte) ([]byte, error) {
	out, err := jsonpatch.MergePatch(orEmpty(base), orEmpty(patch))
	if err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}
	return out, nil
}

// ComposePatch combines two patches into one so that applying the result
// equals applying old and then new. Deletions (null members) in new are
// kept so they still remove members of the base document.
func ComposePatch(old, new []byte) ([]byte, error) {
	out, err := jsonpatch.MergeMergePatches(orEmpty(old), orEmpty(new))
	if err != nil {
		return nil, fmt.Errorf("compose patch: %w", err)
	}
	return out, nil
}

// FromValue encodes v as a patch document.
func FromValue(v any) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	return out, nil
}

// Set returns a patch setting a single top-level member.
func Set(key string, value any) ([]byte, error) {
	return FromValue(map[string]any{key: value})
}

func members(doc []byte) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(orEmpty(doc), &m); err != nil {
		return nil
	}
	return m
}

// Has reports whether doc has a non-null top-level member key.
func Has(doc []byte, key string) bool {
	v, ok := members(doc)[key]
	return ok && string(v) != "null"
}

// Flag reports whether doc has a top-level member key set to true.
func Flag(doc []byte, key string) bool {
	return string(members(doc)[key]) == "true"
}

// String returns the top-level string member key, or "" if absent.
func String(doc []byte, key string) string {
	v, ok := members(doc)[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// Equal reports whether two documents are semantically equal.
func Equal(a, b []byte) bool {
	return jsonpatch.Equal(orEmpty(a), orEmpty(b))
}
