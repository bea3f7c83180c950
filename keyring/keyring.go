// Package keyring manages the HMAC-SHA256 signing key used by the token
// codec. A single 256-bit key is generated on first use and persisted to
// keys/keyring.json (spec.md §4.6); at most one previous key is retained to
// permit graceful rotation (spec.md §8.1 property 8).
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/workrail/engine/fsx"
)

// Alg is the closed set of supported signing algorithms. Only one exists
// today; the field exists so a future algorithm can be introduced without
// an incompatible file format change.
type Alg string

// AlgHMACSHA256 is the only supported algorithm.
const AlgHMACSHA256 Alg = "hmac-sha256"

// Key is a single signing key: an algorithm tag plus raw key bytes.
type Key struct {
	Alg         Alg    `json:"alg"`
	KeyBase64Url string `json:"keyBase64Url"`
}

// Bytes decodes the key's raw bytes.
func (k Key) Bytes() ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(k.KeyBase64Url)
}

// document is the on-disk keyring file shape.
type document struct {
	V       int  `json:"v"`
	Current Key  `json:"current"`
	Previous *Key `json:"previous"`
}

const keyringVersion = 1

// ErrCorrupt classifies keyring corruption: parse failure, missing
// current key, or an unsupported version. Per spec.md §4.6, this is
// fail-closed and unrecoverable without operator intervention.
var ErrCorrupt = errors.New("keyring corruption detected")

// Error wraps keyring failures with a stable reason string for logs.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keyring: %s: %v", e.Reason, e.Err)
	}
	return "keyring: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrCorrupt }

// Keyring holds the current and, optionally, previous signing keys.
type Keyring struct {
	Current  Key
	Previous *Key
}

func newRandomKey() (Key, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Key{}, err
	}
	return Key{Alg: AlgHMACSHA256, KeyBase64Url: base64.RawURLEncoding.EncodeToString(buf)}, nil
}

// Load reads the keyring from path, generating and durably persisting a
// fresh one via fs if the file does not yet exist.
func Load(fs fsx.FS, path string) (*Keyring, error) {
	b, err := fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fsx.ErrNotFound) {
			return bootstrap(fs, path)
		}
		return nil, &Error{Reason: "read keyring file", Err: err}
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &Error{Reason: "parse keyring file", Err: err}
	}
	if doc.V != keyringVersion {
		return nil, &Error{Reason: fmt.Sprintf("unsupported keyring version %d", doc.V)}
	}
	if doc.Current.KeyBase64Url == "" {
		return nil, &Error{Reason: "missing current key"}
	}
	return &Keyring{Current: doc.Current, Previous: doc.Previous}, nil
}

func bootstrap(fs fsx.FS, path string) (*Keyring, error) {
	key, err := newRandomKey()
	if err != nil {
		return nil, &Error{Reason: "generate key", Err: err}
	}
	doc := document{V: keyringVersion, Current: key}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, &Error{Reason: "marshal new keyring", Err: err}
	}
	f, err := fs.OpenExclusive(path, 0o600)
	if err != nil {
		if errors.Is(err, fsx.ErrExists) {
			// Another process raced us to create the keyring; read what it wrote.
			return Load(fs, path)
		}
		return nil, &Error{Reason: "create keyring file", Err: err}
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return nil, &Error{Reason: "write keyring file", Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, &Error{Reason: "fsync keyring file", Err: err}
	}
	if err := f.Close(); err != nil {
		return nil, &Error{Reason: "close keyring file", Err: err}
	}
	return &Keyring{Current: key}, nil
}

// Rotate generates a fresh current key, demoting the existing current key
// to previous (dropping whatever was previously in the previous slot), and
// durably persists the result.
func Rotate(fs fsx.FS, path string, kr *Keyring) (*Keyring, error) {
	next, err := newRandomKey()
	if err != nil {
		return nil, &Error{Reason: "generate rotated key", Err: err}
	}
	prev := kr.Current
	doc := document{V: keyringVersion, Current: next, Previous: &prev}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, &Error{Reason: "marshal rotated keyring", Err: err}
	}
	if err := fs.WriteFileAtomic(path, b, 0o600); err != nil {
		return nil, &Error{Reason: "persist rotated keyring", Err: err}
	}
	return &Keyring{Current: next, Previous: &prev}, nil
}
