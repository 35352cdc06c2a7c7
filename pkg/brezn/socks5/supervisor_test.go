package socks5

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dabena/brezn/pkg/brezn/definition"
)

// fakeSocks5Server accepts connections, completes the no-auth greeting,
// and always replies success to CONNECT, serving as a minimal stand-in
// for a local Tor SOCKS5 proxy in tests.
func fakeSocks5Server(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				greeting := make([]byte, 3)
				if _, err := c.Read(greeting); err != nil {
					return
				}
				if _, err := c.Write([]byte{0x05, 0x00}); err != nil {
					return
				}
				req := make([]byte, 10)
				if _, err := c.Read(req); err != nil {
					return
				}
				_, _ = c.Write([]byte{0x05, 0x00, 0x00, 0x01, 0x7F, 0x00, 0x00, 0x01, 0x00, 0x50})
				<-done
			}(conn)
		}
	}()

	return ln.Addr().String(), func() {
		close(done)
		_ = ln.Close()
	}
}

func testConfig(proxyHost string, proxyPort uint16) Config {
	return Config{
		ProxyHost:               proxyHost,
		FallbackPorts:           []uint16{proxyPort},
		ConnectionTimeout:       time.Second,
		CircuitTimeout:          time.Second,
		MaxConnections:          4,
		HealthCheckInterval:     time.Hour,
		CircuitRotationInterval: time.Hour,
	}
}

func splitHostPort(t *testing.T, addr string) (string, uint16) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, uint16(p)
}

func TestSupervisor_EnableAndDial(t *testing.T) {
	addr, stop := fakeSocks5Server(t)
	defer stop()
	host, port := splitHostPort(t, addr)

	log := definition.NewDefaultLogger("test", false)
	sup := New(testConfig(host, port), log)
	require.NoError(t, sup.Enable())
	defer sup.Disable()

	conn, err := sup.Dial("93.184.216.34", 443)
	require.NoError(t, err)
	require.NotNil(t, conn)
}

func TestSupervisor_Enable_NoCandidatePorts(t *testing.T) {
	log := definition.NewDefaultLogger("test", false)
	sup := New(Config{ProxyHost: "127.0.0.1"}, log)
	err := sup.Enable()
	require.Error(t, err)
}
