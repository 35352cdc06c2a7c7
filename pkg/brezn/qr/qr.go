// Package qr implements the QR bootstrap payload codec (§4.5, §6): the
// canonical JSON document exchanged to bootstrap a new peer, and its
// three textual carriers (raw JSON, base64 PNG, and data URL), rendered
// with github.com/skip2/go-qrcode.
//
// Supplemented from original_source/brezn/src/discovery.rs
// (generate_qr_code_formats / parse_qr_code_advanced), which exposes
// all three carriers rather than only raw JSON.
package qr

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/dabena/brezn/pkg/brezn/types"
)

const (
	payloadVersion   = "1.0"
	checksumMaxAge   = 3600 // seconds; §4.5 "expired timestamp (older than one hour)"
	dataURLPrefix    = "data:image/png;base64,"
)

// Payload is the canonical QR bootstrap document (§4.5).
type Payload struct {
	Version      string   `json:"version"`
	NodeID       string   `json:"node_id"`
	PublicKey    string   `json:"public_key"`
	Address      string   `json:"address"`
	Port         uint16   `json:"port"`
	Timestamp    uint64   `json:"timestamp"`
	Capabilities []string `json:"capabilities"`
	Checksum     string   `json:"checksum"`
}

// checksum computes the SHA-256 hex digest of the concatenated fields,
// per §4.5: node_id+public_key+address+port+timestamp+join(capabilities,",").
func checksum(nodeID, publicKey, address string, port uint16, timestamp uint64, capabilities []string) string {
	joined := strings.Join(capabilities, ",")
	input := fmt.Sprintf("%s%s%s%d%d%s", nodeID, publicKey, address, port, timestamp, joined)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NewPayload builds a payload with a freshly computed checksum.
func NewPayload(nodeID, publicKey, address string, port uint16, timestamp uint64, capabilities []string) Payload {
	return Payload{
		Version:      payloadVersion,
		NodeID:       nodeID,
		PublicKey:    publicKey,
		Address:      address,
		Port:         port,
		Timestamp:    timestamp,
		Capabilities: capabilities,
		Checksum:     checksum(nodeID, publicKey, address, port, timestamp, capabilities),
	}
}

// Validate rejects a wrong version, expired timestamp, mismatched
// checksum, empty required fields, or a port outside 1..=65535 (§4.5).
func (p Payload) Validate(now uint64) error {
	if p.Version != payloadVersion {
		return types.NewError(types.KindInvalid, fmt.Sprintf("unsupported qr payload version %q", p.Version))
	}
	if p.NodeID == "" || p.Address == "" {
		return types.NewError(types.KindInvalid, "qr payload missing required fields")
	}
	if p.Port == 0 {
		return types.NewError(types.KindInvalid, "qr payload port out of range")
	}
	if now > p.Timestamp && now-p.Timestamp > checksumMaxAge {
		return types.NewError(types.KindInvalid, "qr payload timestamp expired")
	}
	want := checksum(p.NodeID, p.PublicKey, p.Address, p.Port, p.Timestamp, p.Capabilities)
	if want != p.Checksum {
		return types.NewError(types.KindInvalid, "qr payload checksum mismatch")
	}
	return nil
}

// EncodeJSON renders the payload as raw JSON, carrier (a).
func EncodeJSON(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// EncodePNG renders the payload as a base64-encoded PNG QR code,
// carrier (b).
func EncodePNG(p Payload, size int) (string, error) {
	raw, err := EncodeJSON(p)
	if err != nil {
		return "", types.WrapError(types.KindInvalid, "marshal qr payload", err)
	}
	png, err := qrcode.Encode(string(raw), qrcode.Medium, size)
	if err != nil {
		return "", types.WrapError(types.KindInvalid, "render qr png", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// EncodeDataURL renders the payload as a data:image/png;base64,...
// URL, carrier (c).
func EncodeDataURL(p Payload, size int) (string, error) {
	b64, err := EncodePNG(p, size)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + b64, nil
}

// Decode accepts the raw-JSON carrier, or a base64/data-URL carrier
// whose payload is already the scanned JSON text, and returns the
// parsed, unvalidated Payload. Callers should call Validate afterward.
//
// It does NOT decode pixels out of a rendered QR/PNG image: this
// module has no image-decoding/QR-scanning library in its dependency
// stack (none of the examples this was built from carry one either,
// and go-qrcode itself is encode-only), so EncodePNG/EncodeDataURL's
// actual PNG bytes cannot be recovered here; see DESIGN.md's "QR
// bootstrap codec" entry. A host with a camera/scanner library decodes
// the image itself and passes Decode the scanner's text output
// (typically the base64 or raw-JSON carrier that was encoded into the
// code), not the PNG bytes.
func Decode(input string) (Payload, error) {
	trimmed := strings.TrimSpace(input)
	switch {
	case strings.HasPrefix(trimmed, dataURLPrefix):
		return decodeScannedCarrier(strings.TrimPrefix(trimmed, dataURLPrefix))
	case strings.HasPrefix(trimmed, "{"):
		return decodeJSON(trimmed)
	default:
		return decodeScannedCarrier(trimmed)
	}
}

func decodeJSON(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, types.WrapError(types.KindInvalid, "parse qr json payload", err)
	}
	return p, nil
}

// decodeScannedCarrier decodes a base64 blob that is expected to be the
// canonical JSON payload itself, as handed back by an external scanner
// that has already turned a QR image into text. A base64 blob of the
// actual rendered PNG bytes (e.g. feeding EncodePNG's own output
// straight back in) will base64-decode fine but fail the JSON check
// below, since this function never interprets image pixels.
func decodeScannedCarrier(b64 string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Payload{}, types.WrapError(types.KindInvalid, "decode base64 qr payload", err)
	}
	if !json.Valid(raw) {
		return Payload{}, types.NewError(types.KindInvalid, "qr carrier did not decode to a JSON payload; rendered PNG/data-URL carriers require an external QR scanner, see DESIGN.md")
	}
	return decodeJSON(string(raw))
}
