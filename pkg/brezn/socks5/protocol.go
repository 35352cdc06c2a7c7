// Package socks5 implements the SOCKS5 client used to tunnel outbound
// connections through a local Tor proxy (§4.3), plus the circuit
// supervisor that pools and health-checks the resulting tunnels.
//
// The wire-level handshake is grounded on the byte layout described in
// spec §4.3/§6 and on the ATYP/command constants used by the SOCKS5
// server in _examples/other_examples (opd-ai-go-tor's pkg/socks),
// adapted here for the client side of the CONNECT handshake.
package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/dabena/brezn/pkg/brezn/types"
)

const (
	version5 = 0x05

	authNone = 0x00

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySuccess = 0x00
)

// Handshake performs the no-auth SOCKS5 greeting: send
// [0x05, 0x01, 0x00], expect [0x05, 0x00].
func Handshake(conn net.Conn) error {
	if _, err := conn.Write([]byte{version5, 0x01, authNone}); err != nil {
		return types.WrapError(types.KindTransport, "socks5 greeting write", err)
	}
	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return types.WrapError(types.KindTransport, "socks5 greeting read", err)
	}
	if reply[0] != version5 {
		return types.NewError(types.KindProtocol, fmt.Sprintf("unexpected socks version %d", reply[0]))
	}
	if reply[1] != authNone {
		return types.NewError(types.KindProtocol, fmt.Sprintf("no-auth method rejected: %d", reply[1]))
	}
	return nil
}

// Connect issues a CONNECT request for (host, port) and parses the
// reply, consuming exactly the bytes the declared ATYP specifies
// (4+2 for IPv4, 16+2 for IPv6, 1+len+2 for DOMAIN) before returning.
// REP must be 0 (success); any other value is a Transport error.
func Connect(conn net.Conn, host string, port uint16) error {
	req, err := buildConnectRequest(host, port)
	if err != nil {
		return err
	}
	if _, err := conn.Write(req); err != nil {
		return types.WrapError(types.KindTransport, "socks5 connect write", err)
	}
	return parseConnectReply(conn)
}

func buildConnectRequest(host string, port uint16) ([]byte, error) {
	req := []byte{version5, cmdConnect, 0x00}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			req = append(req, atypIPv4)
			req = append(req, v4...)
		} else {
			req = append(req, atypIPv6)
			req = append(req, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, types.NewError(types.KindInvalid, "domain name exceeds 255 bytes")
		}
		req = append(req, atypDomain, byte(len(host)))
		req = append(req, []byte(host)...)
	}

	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)
	req = append(req, portBytes...)
	return req, nil
}

func parseConnectReply(conn net.Conn) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return types.WrapError(types.KindTransport, "socks5 reply header read", err)
	}
	ver, rep, _, atyp := header[0], header[1], header[2], header[3]
	if ver != version5 {
		return types.NewError(types.KindProtocol, fmt.Sprintf("unexpected reply version %d", ver))
	}
	if rep != replySuccess {
		return types.WrapError(types.KindTransport, "socks5 connect rejected", fmt.Errorf("REP=0x%02x", rep))
	}

	var addrLen int
	switch atyp {
	case atypIPv4:
		addrLen = 4
	case atypIPv6:
		addrLen = 16
	case atypDomain:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return types.WrapError(types.KindTransport, "socks5 reply domain length read", err)
		}
		addrLen = int(lenByte[0])
	default:
		return types.NewError(types.KindProtocol, fmt.Sprintf("unknown ATYP %d", atyp))
	}

	// BND.ADDR + BND.PORT
	skip := make([]byte, addrLen+2)
	if _, err := io.ReadFull(conn, skip); err != nil {
		return types.WrapError(types.KindTransport, "socks5 reply bnd read", err)
	}
	return nil
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
