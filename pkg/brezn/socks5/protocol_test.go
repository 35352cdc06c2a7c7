package socks5

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn returns a connected pair of net.Conn for protocol tests.
func pipeConn() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestHandshake_Success(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 3)
		if _, err := server.Read(buf); err != nil {
			done <- err
			return
		}
		_, err := server.Write([]byte{0x05, 0x00})
		done <- err
	}()

	err := Handshake(client)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestHandshake_RejectsNonNoAuth(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 3)
		_, _ = server.Read(buf)
		_, _ = server.Write([]byte{0x05, 0xFF})
	}()

	err := Handshake(client)
	assert.Error(t, err)
}

func TestConnect_IPv4Reply_ConsumesExactBytes(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		req := make([]byte, 10) // VER,CMD,RSV,ATYP,4 addr bytes,2 port bytes
		_, _ = server.Read(req)
		// 05 00 00 01 7F 00 00 01 1F 90 -- 10 bytes total
		_, _ = server.Write([]byte{0x05, 0x00, 0x00, 0x01, 0x7F, 0x00, 0x00, 0x01, 0x1F, 0x90})
	}()

	err := Connect(client, "93.184.216.34", 443)
	require.NoError(t, err)
}

func TestConnect_DomainReply(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		req := make([]byte, 4+1+len("example.com")+2)
		_, _ = server.Read(req)
		reply := []byte{0x05, 0x00, 0x00, 0x03, 0x03}
		reply = append(reply, []byte("abc")...)
		reply = append(reply, 0x00, 0x50)
		_, _ = server.Write(reply)
	}()

	err := Connect(client, "example.com", 80)
	require.NoError(t, err)
}

func TestConnect_RejectsNonZeroRep(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		req := make([]byte, 10)
		_, _ = server.Read(req)
		_, _ = server.Write([]byte{0x05, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	}()

	err := Connect(client, "1.2.3.4", 80)
	assert.Error(t, err)
}

func TestBuildConnectRequest_DomainTooLong(t *testing.T) {
	host := make([]byte, 256)
	for i := range host {
		host[i] = 'a'
	}
	_, err := buildConnectRequest(string(host), 80)
	assert.Error(t, err)
}
