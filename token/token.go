// Package token implements the state/ack token codec (spec.md §3.5, §4.6):
// canonical payload bytes, framed as <tagByte><payloadBytes><hmacTag>, then
// outer-encoded with bech32m using a kind-specific human-readable prefix.
//
// Bech32m (BIP-350) catches bit errors and cross-kind (wrong-prefix)
// mix-ups at the framing layer, before the HMAC is ever checked — exactly
// the layering spec.md §3.5 calls for. github.com/btcsuite/btcutil/bech32
// supplies the reference bech32m implementation; it is not used anywhere
// else in the retrieval pack, so it is named here as an out-of-pack
// ecosystem dependency rather than grounded on a pack example.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"

	"github.com/workrail/engine/canon"
	"github.com/workrail/engine/keyring"
)

// Kind distinguishes the two token shapes; it is also encoded as part of
// the one-byte tag and must match the bech32m human-readable prefix.
type Kind byte

const (
	// KindState names (sessionId, runId, nodeId, workflowHashRef).
	KindState Kind = 1
	// KindAck names (sessionId, runId, nodeId, attemptId).
	KindAck Kind = 2
)

const tokenVersion = 1

// hrpFor returns the bech32m human-readable prefix for kind.
func hrpFor(k Kind) (string, error) {
	switch k {
	case KindState:
		return "stv1", nil
	case KindAck:
		return "ackv1", nil
	default:
		return "", fmt.Errorf("token: unknown kind %d", k)
	}
}

func kindForHRP(hrp string) (Kind, bool) {
	switch hrp {
	case "stv1":
		return KindState, true
	case "ackv1":
		return KindAck, true
	default:
		return 0, false
	}
}

// StatePayload is the canonical payload of a state token.
type StatePayload struct {
	V               int    `json:"v"`
	SessionID       string `json:"sessionId"`
	RunID           string `json:"runId"`
	NodeID          string `json:"nodeId"`
	WorkflowHashRef string `json:"workflowHashRef"`
}

// AckPayload is the canonical payload of an ack token.
type AckPayload struct {
	V         int    `json:"v"`
	SessionID string `json:"sessionId"`
	RunID     string `json:"runId"`
	NodeID    string `json:"nodeId"`
	AttemptID string `json:"attemptId"`
}

// ErrorCode is the closed set of token-decode failure classifications,
// named identically to spec.md §6.3's TOKEN_* wire codes so callers can
// map 1:1 without a second translation table.
type ErrorCode string

const (
	ErrInvalidFormat    ErrorCode = "TOKEN_INVALID_FORMAT"
	ErrUnsupportedVer   ErrorCode = "TOKEN_UNSUPPORTED_VERSION"
	ErrBadSignature     ErrorCode = "TOKEN_BAD_SIGNATURE"
)

// Error is the typed decode failure. Bech32mErrorCode/Position are set
// only when Code == ErrInvalidFormat and the failure occurred during
// bech32m unwrapping.
type Error struct {
	Code            ErrorCode
	Bech32mErrorCode string
	Position        *int
	Err             error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token: %s: %v", e.Code, e.Err)
	}
	return "token: " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// sentinel used with errors.Is to classify by Code without exposing the
// concrete *Error type at every call site.
var (
	ErrSentinelInvalidFormat  = errors.New("token invalid format")
	ErrSentinelUnsupportedVer = errors.New("token unsupported version")
	ErrSentinelBadSignature   = errors.New("token bad signature")
)

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSentinelInvalidFormat:
		return e.Code == ErrInvalidFormat
	case ErrSentinelUnsupportedVer:
		return e.Code == ErrUnsupportedVer
	case ErrSentinelBadSignature:
		return e.Code == ErrBadSignature
	}
	return false
}

// EncodeState signs and frames a state payload as a bech32m token string.
func EncodeState(kr *keyring.Keyring, p StatePayload) (string, error) {
	if p.V == 0 {
		p.V = tokenVersion
	}
	return encode(kr, KindState, p)
}

// EncodeAck signs and frames an ack payload as a bech32m token string.
func EncodeAck(kr *keyring.Keyring, p AckPayload) (string, error) {
	if p.V == 0 {
		p.V = tokenVersion
	}
	return encode(kr, KindAck, p)
}

func encode(kr *keyring.Keyring, kind Kind, payload any) (string, error) {
	hrp, err := hrpFor(kind)
	if err != nil {
		return "", err
	}
	payloadBytes, err := canon.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("token: canonicalize payload: %w", err)
	}
	keyBytes, err := kr.Current.Bytes()
	if err != nil {
		return "", fmt.Errorf("token: decode current key: %w", err)
	}
	tag := sign(keyBytes, byte(kind), payloadBytes)
	framed := append([]byte{byte(kind)}, payloadBytes...)
	framed = append(framed, tag...)

	fiveBit, err := bech32.ConvertBits(framed, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("token: convert bits: %w", err)
	}
	out, err := bech32.EncodeM(hrp, fiveBit)
	if err != nil {
		return "", fmt.Errorf("token: bech32m encode: %w", err)
	}
	return out, nil
}

// DecodeState bech32m-unwraps, verifies, and parses a state token.
func DecodeState(kr *keyring.Keyring, tok string) (StatePayload, error) {
	var p StatePayload
	raw, err := decodeVerify(kr, KindState, tok)
	if err != nil {
		return p, err
	}
	if err := canon.Unmarshal(raw, &p); err != nil {
		return p, &Error{Code: ErrInvalidFormat, Err: err}
	}
	if p.V != tokenVersion {
		return p, &Error{Code: ErrUnsupportedVer, Err: fmt.Errorf("version %d", p.V)}
	}
	return p, nil
}

// DecodeAck bech32m-unwraps, verifies, and parses an ack token.
func DecodeAck(kr *keyring.Keyring, tok string) (AckPayload, error) {
	var p AckPayload
	raw, err := decodeVerify(kr, KindAck, tok)
	if err != nil {
		return p, err
	}
	if err := canon.Unmarshal(raw, &p); err != nil {
		return p, &Error{Code: ErrInvalidFormat, Err: err}
	}
	if p.V != tokenVersion {
		return p, &Error{Code: ErrUnsupportedVer, Err: fmt.Errorf("version %d", p.V)}
	}
	return p, nil
}

// decodeVerify performs the shared unwrap -> split -> verify pipeline and
// returns the raw payload bytes (still JSON, not yet parsed into a typed
// payload) so DecodeState/DecodeAck can apply kind-specific parsing.
func decodeVerify(kr *keyring.Keyring, wantKind Kind, tok string) ([]byte, error) {
	hrp, fiveBit, encoding, err := bech32.DecodeGeneric(tok)
	if err != nil {
		return nil, &Error{Code: ErrInvalidFormat, Bech32mErrorCode: "BECH32M_CHECKSUM_FAILED", Err: err}
	}
	if encoding != bech32.Bech32m {
		return nil, &Error{Code: ErrInvalidFormat, Bech32mErrorCode: "BECH32M_WRONG_VARIANT", Err: fmt.Errorf("expected bech32m encoding")}
	}
	wantHRP, err := hrpFor(wantKind)
	if err != nil {
		return nil, err
	}
	if hrp != wantHRP {
		if _, ok := kindForHRP(hrp); !ok {
			return nil, &Error{Code: ErrInvalidFormat, Bech32mErrorCode: "hrp_mismatch", Err: fmt.Errorf("unknown hrp %q", hrp)}
		}
		return nil, &Error{Code: ErrInvalidFormat, Bech32mErrorCode: "hrp_mismatch", Err: fmt.Errorf("hrp %q does not name the expected token kind", hrp)}
	}

	framed, err := bech32.ConvertBits(fiveBit, 5, 8, false)
	if err != nil {
		return nil, &Error{Code: ErrInvalidFormat, Err: err}
	}
	if len(framed) < 1+sha256.Size {
		return nil, &Error{Code: ErrInvalidFormat, Err: fmt.Errorf("frame too short")}
	}

	tagByte := framed[0]
	tagEnd := len(framed) - sha256.Size
	payloadBytes := framed[1:tagEnd]
	hmacTag := framed[tagEnd:]

	if Kind(tagByte) != wantKind {
		return nil, &Error{Code: ErrInvalidFormat, Err: fmt.Errorf("tag byte %d does not match hrp-declared kind", tagByte)}
	}

	if !verifyAny(kr, tagByte, payloadBytes, hmacTag) {
		return nil, &Error{Code: ErrBadSignature}
	}
	return payloadBytes, nil
}

func sign(key []byte, tag byte, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte{tag})
	mac.Write(payload)
	return mac.Sum(nil)
}

func verifyAny(kr *keyring.Keyring, tag byte, payload, tagBytes []byte) bool {
	if curBytes, err := kr.Current.Bytes(); err == nil {
		if hmac.Equal(sign(curBytes, tag, payload), tagBytes) {
			return true
		}
	}
	if kr.Previous != nil {
		if prevBytes, err := kr.Previous.Bytes(); err == nil {
			if hmac.Equal(sign(prevBytes, tag, payload), tagBytes) {
				return true
			}
		}
	}
	return false
}
