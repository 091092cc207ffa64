package authenticator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/saslauth/auth"
	"github.com/maxpert/saslauth/config"
	saslerrors "github.com/maxpert/saslauth/errors"
	"github.com/maxpert/saslauth/protocol"
)

func TestBuilderPlainExchange(t *testing.T) {
	cfg, err := config.NewConfigBuilder().
		WithAddress("broker-7:9092").
		WithClientID("builder").
		WithMechanism(auth.MechanismPlain).
		WithCredentials("alice", "alice-secret").
		Build()
	require.NoError(t, err)

	transport := &fakeTransport{}
	a, err := NewBuilderWithConfig(cfg).Build(transport)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Authenticate())
	assert.Equal(t, handshakeRequest(t, 0, "builder", auth.MechanismPlain), transport.takeWritten())

	transport.deliver(handshakeResponse(t, 0, protocol.ErrNone, auth.MechanismPlain))
	require.NoError(t, a.Authenticate())
	assert.Equal(t, frame([]byte("\x00alice\x00alice-secret")), transport.takeWritten())

	// The broker answers a successful PLAIN login with an empty token
	transport.deliver(frame(nil))
	require.NoError(t, a.Authenticate())
	assert.True(t, a.Complete())

	principal, ok := a.Principal()
	require.True(t, ok)
	assert.Equal(t, "alice", principal.Name)
}

func TestBuilderSessionConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Network.Address = "kafka.example.com:9093"
	cfg.SASL.ServiceName = "kafka"
	cfg.SASL.Options["k"] = "v"

	session := NewBuilderWithConfig(cfg).WithMechanism(auth.MechanismScramSHA512).SessionConfig()
	assert.Equal(t, "kafka.example.com", session.Host)
	assert.Equal(t, auth.MechanismScramSHA512, session.Mechanism)
	assert.Equal(t, "kafka", session.ServiceName)
	assert.Equal(t, "v", session.Options["k"])
	assert.Equal(t, protocol.DefaultMaxReceiveSize, session.MaxReceiveSize)
}

func TestBuilderOverrides(t *testing.T) {
	client := &fakeClient{name: "M1", initial: []byte("T1")}
	registry := auth.NewRegistry()
	registry.Register("M1", func(cfg auth.MechanismConfig) (auth.Client, error) { return client, nil })

	transport := &fakeTransport{}
	a, err := NewBuilder().
		WithMechanism("M1").
		WithNode("node-x").
		WithRegistry(registry).
		WithCredentials(auth.NewStaticCredentials([]string{"svc"})).
		WithZapLogger("error").
		Build(transport)
	require.NoError(t, err)
	assert.Equal(t, StateSendHandshakeRequest, a.State())

	transport.writeErr = assert.AnError
	err = a.Authenticate()
	var transportErr *saslerrors.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "node-x", transportErr.Node)
}

func TestBuilderConfigureFailure(t *testing.T) {
	a, err := NewBuilder().WithMechanism("UNKNOWN").Build(&fakeTransport{})
	require.Error(t, err)
	require.NotNil(t, a)
	assert.Equal(t, StateFailed, a.State())
	assert.NoError(t, a.Close())
}

func TestBuilderRequiresTransport(t *testing.T) {
	_, err := NewBuilder().Build(nil)
	assert.Error(t, err)
}
