package qr

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_RoundTripJSON(t *testing.T) {
	p := NewPayload("node-1", "pubkey", "192.168.1.10", 7878, 1000, []string{"sync", "relay"})
	raw, err := EncodeJSON(p)
	require.NoError(t, err)

	got, err := Decode(string(raw))
	require.NoError(t, err)
	assert.Equal(t, p, got)
	require.NoError(t, got.Validate(1000))
}

func TestPayload_Validate_RejectsBadChecksum(t *testing.T) {
	p := NewPayload("node-1", "pubkey", "192.168.1.10", 7878, 1000, nil)
	p.Checksum = "deadbeef"
	err := p.Validate(1000)
	assert.Error(t, err)
}

func TestPayload_Validate_RejectsExpiredTimestamp(t *testing.T) {
	p := NewPayload("node-1", "pubkey", "192.168.1.10", 7878, 1000, nil)
	err := p.Validate(1000 + checksumMaxAge + 1)
	assert.Error(t, err)
}

func TestPayload_Validate_RejectsZeroPort(t *testing.T) {
	p := NewPayload("node-1", "pubkey", "192.168.1.10", 0, 1000, nil)
	err := p.Validate(1000)
	assert.Error(t, err)
}

func TestEncodeDataURL_HasPNGDataURLPrefix(t *testing.T) {
	p := NewPayload("node-2", "pubkey2", "10.0.0.5", 9000, 2000, []string{"sync"})
	url, err := EncodeDataURL(p, 128)
	require.NoError(t, err)
	assert.Regexp(t, `^data:image/png;base64,`, url)
}

// Decoding a data URL's actual rendered PNG bytes is not supported
// without an external QR-scanning library; Decode must reject it
// clearly rather than silently fabricate a payload.
func TestDecode_RejectsRenderedDataURLWithoutScanner(t *testing.T) {
	p := NewPayload("node-2", "pubkey2", "10.0.0.5", 9000, 2000, []string{"sync"})
	url, err := EncodeDataURL(p, 128)
	require.NoError(t, err)

	_, err = Decode(url)
	assert.Error(t, err)
}

// The base64/data-URL carriers are decodable when the caller supplies
// the scanner's already-recovered JSON text rather than raw PNG bytes.
func TestDecode_AcceptsScannedJSONOverBase64Carrier(t *testing.T) {
	p := NewPayload("node-3", "pubkey3", "10.0.0.6", 9001, 3000, []string{"sync"})
	raw, err := EncodeJSON(p)
	require.NoError(t, err)
	scanned := dataURLPrefix + base64.StdEncoding.EncodeToString(raw)

	got, err := Decode(scanned)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
