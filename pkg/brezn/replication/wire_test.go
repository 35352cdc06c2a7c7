package replication

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"hello":"world"}`)))

	got, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(got))
}

func TestFrameDecoder_ExtractsOnlyWhenFullyBuffered(t *testing.T) {
	var d FrameDecoder
	var full bytes.Buffer
	require.NoError(t, WriteFrame(&full, []byte(`{"a":1}`)))
	raw := full.Bytes()

	d.Feed(raw[:3])
	_, ok, err := d.Next()
	require.NoError(t, err)
	assert.False(t, ok)

	d.Feed(raw[3:])
	payload, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	_, ok, err = d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFrameDecoder_HandlesMultipleFramesInOneFeed(t *testing.T) {
	var d FrameDecoder
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`1`)))
	require.NoError(t, WriteFrame(&buf, []byte(`2`)))
	d.Feed(buf.Bytes())

	p1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(p1))

	p2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(p2))
}
