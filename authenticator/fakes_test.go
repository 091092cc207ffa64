package authenticator

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxpert/saslauth/auth"
	"github.com/maxpert/saslauth/interfaces"
	"github.com/maxpert/saslauth/protocol"
)

// fakeTransport is a scripted non-blocking connection
type fakeTransport struct {
	inbound  bytes.Buffer
	written  bytes.Buffer
	readErr  error
	writeErr error
	eof      bool

	// nil means unlimited; otherwise each write accepts the next limit and
	// an exhausted schedule accepts nothing
	writeLimits []int

	writeInterest bool
	addCalls      int
	removeCalls   int
}

func (f *fakeTransport) deliver(data []byte) {
	f.inbound.Write(data)
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.inbound.Len() == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	return f.inbound.Read(p)
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p)
	if f.writeLimits != nil {
		if len(f.writeLimits) == 0 {
			return 0, nil
		}
		if f.writeLimits[0] < n {
			n = f.writeLimits[0]
		}
		f.writeLimits = f.writeLimits[1:]
	}
	return f.written.Write(p[:n])
}

func (f *fakeTransport) AddWriteInterest() {
	f.writeInterest = true
	f.addCalls++
}

func (f *fakeTransport) RemoveWriteInterest() {
	f.writeInterest = false
	f.removeCalls++
}

// takeWritten returns and clears everything written so far
func (f *fakeTransport) takeWritten() []byte {
	out := append([]byte(nil), f.written.Bytes()...)
	f.written.Reset()
	return out
}

var _ interfaces.Transport = (*fakeTransport)(nil)

// fakeClient is a scripted mechanism engine
type fakeClient struct {
	name string

	// initial is the initial response; nil means the server speaks first
	initial []byte

	// responses[i] answers the i-th challenge
	responses [][]byte

	// completeAfter is the number of challenges after which the exchange is done
	completeAfter int

	err        error
	challenges [][]byte
	complete   bool
	disposed   int
}

func (c *fakeClient) Name() string             { return c.name }
func (c *fakeClient) HasInitialResponse() bool { return c.initial != nil }
func (c *fakeClient) IsComplete() bool         { return c.complete }

func (c *fakeClient) CreateToken(challenge []byte, initial bool) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if initial {
		return c.initial, nil
	}

	c.challenges = append(c.challenges, append([]byte(nil), challenge...))
	n := len(c.challenges)
	if n >= c.completeAfter {
		c.complete = true
	}
	if n <= len(c.responses) {
		return c.responses[n-1], nil
	}
	return nil, nil
}

func (c *fakeClient) Dispose() error {
	c.disposed++
	return nil
}

// closingCredentials counts how often the credential source is released
type closingCredentials struct {
	*auth.StaticCredentials
	closes int
}

func (c *closingCredentials) Close() error {
	c.closes++
	return nil
}

// countingCodec counts how often response headers are decoded
type countingCodec struct {
	*protocol.HandshakeCodec
	encodes       int
	headerDecodes int
}

func (c *countingCodec) EncodeHandshakeRequest(header protocol.RequestHeader, request *protocol.SaslHandshakeRequest) ([]byte, error) {
	c.encodes++
	return c.HandshakeCodec.EncodeHandshakeRequest(header, request)
}

func (c *countingCodec) DecodeResponseHeader(payload []byte) (protocol.ResponseHeader, []byte, error) {
	c.headerDecodes++
	return c.HandshakeCodec.DecodeResponseHeader(payload)
}

type harness struct {
	transport   *fakeTransport
	client      *fakeClient
	credentials *closingCredentials
	codec       *countingCodec
	auth        *ClientAuthenticator
}

func newHarness(t *testing.T, mechanism string, client *fakeClient, opts ...Option) *harness {
	t.Helper()

	registry := auth.NewRegistry()
	registry.Register(mechanism, func(cfg auth.MechanismConfig) (auth.Client, error) {
		return client, nil
	})

	h := &harness{
		transport:   &fakeTransport{},
		client:      client,
		credentials: &closingCredentials{StaticCredentials: auth.UserCredentials("alice", "alice-secret")},
		codec:       &countingCodec{HandshakeCodec: protocol.NewHandshakeCodec()},
	}
	opts = append([]Option{WithRegistry(registry), WithCodec(h.codec)}, opts...)
	h.auth = New("broker-1:9092", h.credentials, opts...)
	return h
}

func (h *harness) configure(t *testing.T, mechanism string) {
	t.Helper()
	require.NoError(t, h.auth.Configure(h.transport, Config{Mechanism: mechanism, ClientID: "producer"}))
}

func frame(payload []byte) []byte {
	out := make([]byte, protocol.SizeLength+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[protocol.SizeLength:], payload)
	return out
}

func handshakeResponse(t *testing.T, correlationID int32, code int16, mechanisms ...string) []byte {
	t.Helper()
	data, err := protocol.NewHandshakeCodec().EncodeHandshakeResponse(
		protocol.ResponseHeader{CorrelationID: correlationID},
		&protocol.SaslHandshakeResponse{ErrorCode: code, EnabledMechanisms: mechanisms},
	)
	require.NoError(t, err)
	return frame(data)
}

func handshakeRequest(t *testing.T, correlationID int32, clientID, mechanism string) []byte {
	t.Helper()
	data, err := protocol.NewHandshakeCodec().EncodeHandshakeRequest(protocol.RequestHeader{
		APIKey:        protocol.APIKeySaslHandshake,
		APIVersion:    protocol.SaslHandshakeVersion,
		CorrelationID: correlationID,
		ClientID:      clientID,
	}, &protocol.SaslHandshakeRequest{Mechanism: mechanism})
	require.NoError(t, err)
	return frame(data)
}
