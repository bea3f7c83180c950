// Package canon produces the canonical, deterministic UTF-8 JSON byte
// representation used everywhere a content digest or an HMAC is computed
// over a structured payload (spec.md §3.4, §3.5).
//
// encoding/json already serializes struct fields in declaration order
// (not alphabetically, not map-iteration order), which is sufficient
// determinism as long as payload types never embed a Go map directly.
// Marshal enforces that restriction by walking v with reflection and
// rejecting any payload that carries a map-shaped value anywhere in its
// field tree (top-level or nested inside a struct/slice/array/pointer);
// callers that need key/value data use an ordered slice of pairs instead.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
)

// Marshal renders v as canonical bytes, suitable for digesting or signing.
// HTML-escaping is disabled so the output is stable across Go versions and
// unaffected by incidental '<', '>', '&' characters in string fields.
func Marshal(v any) ([]byte, error) {
	if containsMap(reflect.ValueOf(v)) {
		return nil, fmt.Errorf("canon: payload contains a map-shaped value; use an ordered slice of pairs instead")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; canonical payloads
	// must not carry one so two equivalent values always produce
	// byte-identical output regardless of encoder vs. marshal call path.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// containsMap reports whether v is, or contains anywhere in its field
// tree, a value of map kind. It walks structs, slices, arrays, pointers,
// and interfaces; other kinds (including the map's own key/value types,
// which are never inspected once a map is found) terminate the walk.
func containsMap(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Map:
		return true
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return false
		}
		return containsMap(v.Elem())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if containsMap(v.Field(i)) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if containsMap(v.Index(i)) {
				return true
			}
		}
	}
	return false
}

// Digest returns the lowercase hex sha256 digest of v's canonical bytes,
// along with the canonical bytes themselves.
func Digest(v any) (digestHex string, canonicalBytes []byte, err error) {
	b, err := Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// DigestRef returns a sha256:<hex> reference string, the form spec.md §3.1
// calls workflowHash/snapshotRef.
func DigestRef(v any) (ref string, canonicalBytes []byte, err error) {
	hexDigest, b, err := Digest(v)
	if err != nil {
		return "", nil, err
	}
	return "sha256:" + hexDigest, b, nil
}

// Unmarshal parses canonical bytes back into v. It is a thin wrapper over
// encoding/json kept in this package so every call site that produced
// bytes via Marshal reads them back through the same decode settings.
func Unmarshal(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("canon: decode: %w", err)
	}
	return nil
}

// CanonicalizeForeign re-serializes raw — arbitrary JSON authored outside
// this module, e.g. a workflow definition loaded from a provider — into a
// canonical json.RawMessage. Unlike Marshal, it does not reject map-shaped
// values: foreign JSON objects decode to map[string]any, and there is no
// ordered-pairs alternative a workflow author could use instead. Its
// determinism rests on encoding/json's own guarantee that map[string]T
// keys are marshaled in sorted order, not on the containsMap restriction
// Marshal enforces for this module's own wire-payload structs. This is a
// deliberate, narrow exception: everything this module authors itself
// still goes through Marshal and its stricter guarantee.
func CanonicalizeForeign(raw []byte) (json.RawMessage, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("canon: decode foreign json: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(decoded); err != nil {
		return nil, fmt.Errorf("canon: encode foreign json: %w", err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
