//go:build unix

package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/maxpert/saslauth/auth"
	"github.com/maxpert/saslauth/authenticator"
	saslerrors "github.com/maxpert/saslauth/errors"
	"github.com/maxpert/saslauth/protocol"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func dial(t *testing.T, addr string) *Conn {
	t.Helper()
	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn, err := New(raw)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(conn net.Conn) ([]byte, error) {
	var size [protocol.SizeLength]byte
	if _, err := io.ReadFull(conn, size[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(size[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFrame(conn net.Conn, payload []byte) error {
	out := make([]byte, protocol.SizeLength+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[protocol.SizeLength:], payload)
	_, err := conn.Write(out)
	return err
}

// fakeBroker answers one SASL handshake and PLAIN login on the first connection
func fakeBroker(ln net.Listener, enabled []string, code int16) func() error {
	return func() error {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close()

		codec := protocol.NewHandshakeCodec()
		payload, err := readFrame(conn)
		if err != nil {
			return err
		}
		header, body, err := codec.DecodeRequestHeader(payload)
		if err != nil {
			return err
		}
		if _, err := codec.DecodeHandshakeRequest(body); err != nil {
			return err
		}

		response, err := codec.EncodeHandshakeResponse(protocol.ResponseHeader{CorrelationID: header.CorrelationID},
			&protocol.SaslHandshakeResponse{ErrorCode: code, EnabledMechanisms: enabled})
		if err != nil {
			return err
		}
		if err := writeFrame(conn, response); err != nil {
			return err
		}
		if code != protocol.ErrNone {
			return nil
		}

		token, err := readFrame(conn)
		if err != nil {
			return err
		}
		if string(token) != "\x00alice\x00alice-secret" {
			return io.ErrUnexpectedEOF
		}
		return writeFrame(conn, nil)
	}
}

func TestReadWouldBlock(t *testing.T) {
	ln := listen(t)
	conn := dial(t, ln.Addr().String())

	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = peer.Write([]byte("hello"))
	require.NoError(t, err)

	readable, _, err := conn.Poll(time.Second)
	require.NoError(t, err)
	assert.True(t, readable)

	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestReadEOF(t *testing.T) {
	ln := listen(t)
	conn := dial(t, ln.Addr().String())

	peer, err := ln.Accept()
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	readable, _, err := conn.Poll(time.Second)
	require.NoError(t, err)
	assert.True(t, readable)

	_, err = conn.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteInterest(t *testing.T) {
	ln := listen(t)
	conn := dial(t, ln.Addr().String())
	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()

	assert.False(t, conn.WriteInterest())
	_, writable, err := conn.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, writable)

	conn.AddWriteInterest()
	assert.True(t, conn.WriteInterest())
	_, writable, err = conn.Poll(time.Second)
	require.NoError(t, err)
	assert.True(t, writable)

	conn.RemoveWriteInterest()
	assert.False(t, conn.WriteInterest())

	n, err := conn.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRunPlainLogin(t *testing.T) {
	ln := listen(t)
	var g errgroup.Group
	g.Go(fakeBroker(ln, []string{auth.MechanismPlain}, protocol.ErrNone))

	conn := dial(t, ln.Addr().String())
	session := authenticator.New(ln.Addr().String(), auth.UserCredentials("alice", "alice-secret"))
	require.NoError(t, session.Configure(conn, authenticator.Config{Mechanism: auth.MechanismPlain, ClientID: "test"}))
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Run(ctx, session, conn, 20*time.Millisecond))
	require.NoError(t, g.Wait())

	principal, ok := session.Principal()
	require.True(t, ok)
	assert.Equal(t, "alice", principal.Name)
	assert.False(t, conn.WriteInterest())
}

func TestRunUnsupportedMechanism(t *testing.T) {
	ln := listen(t)
	var g errgroup.Group
	g.Go(fakeBroker(ln, []string{auth.MechanismScramSHA512}, protocol.ErrUnsupportedSaslMechanism))

	conn := dial(t, ln.Addr().String())
	session := authenticator.New(ln.Addr().String(), auth.UserCredentials("alice", "alice-secret"))
	require.NoError(t, session.Configure(conn, authenticator.Config{Mechanism: auth.MechanismPlain}))
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Run(ctx, session, conn, 20*time.Millisecond)
	require.NoError(t, g.Wait())

	var unsupported *saslerrors.UnsupportedMechanismError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, []string{auth.MechanismScramSHA512}, unsupported.EnabledMechanisms)
}

func TestRunTimeout(t *testing.T) {
	ln := listen(t)
	conn := dial(t, ln.Addr().String())
	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()

	// The peer never answers
	session := authenticator.New("silent", auth.UserCredentials("alice", "alice-secret"))
	require.NoError(t, session.Configure(conn, authenticator.Config{Mechanism: auth.MechanismPlain}))
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = Run(ctx, session, conn, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, authenticator.StateReceiveHandshakeResponse, session.State())
}

func TestNewRejectsPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	_, err := New(a)
	assert.Error(t, err)
}
