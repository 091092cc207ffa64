package authenticator

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/maxpert/saslauth/auth"
	saslerrors "github.com/maxpert/saslauth/errors"
	"github.com/maxpert/saslauth/interfaces"
	"github.com/maxpert/saslauth/metrics"
	"github.com/maxpert/saslauth/protocol"
)

const tracerName = "github.com/maxpert/saslauth/authenticator"

const unknownServerHint = " This may be caused by the client being unable to resolve the broker's hostname" +
	" correctly. Make sure the broker address resolves to its fully qualified domain name."

// State is a step of the client authentication exchange
type State int

const (
	StateSendHandshakeRequest State = iota
	StateReceiveHandshakeResponse
	StateInitial
	StateIntermediate
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateSendHandshakeRequest:     "SEND_HANDSHAKE_REQUEST",
	StateReceiveHandshakeResponse: "RECEIVE_HANDSHAKE_RESPONSE",
	StateInitial:                  "INITIAL",
	StateIntermediate:             "INTERMEDIATE",
	StateComplete:                 "COMPLETE",
	StateFailed:                   "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// HandshakeCodec encodes the negotiation request and decodes its response
type HandshakeCodec interface {
	EncodeHandshakeRequest(header protocol.RequestHeader, request *protocol.SaslHandshakeRequest) ([]byte, error)
	DecodeResponseHeader(payload []byte) (protocol.ResponseHeader, []byte, error)
	DecodeHandshakeResponse(body []byte) (*protocol.SaslHandshakeResponse, error)
}

// Config selects the mechanism and request metadata of one session
type Config struct {
	Mechanism       string
	ClientID        string
	AuthorizationID string
	ServiceName     string
	Host            string
	Options         map[string]string

	// MaxReceiveSize bounds inbound frames. Zero selects
	// protocol.DefaultMaxReceiveSize, a negative value disables the bound.
	MaxReceiveSize int
}

// Option customizes a ClientAuthenticator
type Option func(*ClientAuthenticator)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(a *ClientAuthenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRegistry sets the mechanism registry; the default is auth.DefaultRegistry
func WithRegistry(registry *auth.Registry) Option {
	return func(a *ClientAuthenticator) {
		if registry != nil {
			a.registry = registry
		}
	}
}

// WithCodec replaces the handshake codec
func WithCodec(codec HandshakeCodec) Option {
	return func(a *ClientAuthenticator) {
		if codec != nil {
			a.codec = codec
		}
	}
}

// WithMetrics records session outcomes in the collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(a *ClientAuthenticator) {
		a.metrics = collector
	}
}

// WithTracerProvider sets where session spans go; the default is the global provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(a *ClientAuthenticator) {
		if provider != nil {
			a.tracer = provider.Tracer(tracerName)
		}
	}
}

// ClientAuthenticator drives the client side of SASL authentication over a
// non-blocking transport. The owner calls Authenticate on every read or
// write readiness event until Complete reports true or an error is returned.
//
// Invocations for one session must be serialized by the caller.
type ClientAuthenticator struct {
	node        string
	credentials interfaces.CredentialSource
	sessionID   uuid.UUID

	logger   *zap.Logger
	registry *auth.Registry
	codec    HandshakeCodec
	metrics  *metrics.Collector
	tracer   trace.Tracer
	span     trace.Span

	transport      interfaces.Transport
	mechanism      string
	clientID       string
	maxReceiveSize int
	client         auth.Client
	callbacks      auth.Callbacks

	state         State
	pendingState  *State
	correlationID int32
	currentHeader *protocol.RequestHeader
	netOut        *protocol.Send
	netIn         *protocol.Receive
	principalName string
	failure       error

	configured bool
	closed     bool
	spanEnded  bool
}

// New creates an unconfigured authenticator for the connection to node
func New(node string, credentials interfaces.CredentialSource, opts ...Option) *ClientAuthenticator {
	a := &ClientAuthenticator{
		node:        node,
		credentials: credentials,
		sessionID:   uuid.New(),
		logger:      zap.NewNop(),
		registry:    auth.DefaultRegistry(),
		codec:       protocol.NewHandshakeCodec(),
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Configure binds the transport and creates the mechanism client. It may
// be called once. A failure here leaves the session FAILED.
func (a *ClientAuthenticator) Configure(transport interfaces.Transport, cfg Config) error {
	if a.configured {
		return saslerrors.NewConfigurationError("authenticator already configured", a.mechanism, nil)
	}
	a.configured = true

	a.transport = transport
	a.mechanism = cfg.Mechanism
	a.clientID = cfg.ClientID
	a.maxReceiveSize = cfg.MaxReceiveSize
	if a.maxReceiveSize == 0 {
		a.maxReceiveSize = protocol.DefaultMaxReceiveSize
	}
	a.netIn = protocol.NewReceive(a.node, a.maxReceiveSize)

	a.logger = a.logger.With(
		zap.String("node", a.node),
		zap.String("session_id", a.sessionID.String()),
		zap.String("mechanism", a.mechanism),
	)
	_, a.span = a.tracer.Start(context.Background(), "sasl.authenticate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("sasl.node", a.node),
			attribute.String("sasl.session_id", a.sessionID.String()),
			attribute.String("sasl.mechanism", a.mechanism),
		),
	)
	a.metrics.RecordSessionStarted(a.mechanism)

	if a.credentials != nil {
		if principals := a.credentials.Principals(); len(principals) > 0 {
			a.principalName = principals[0]
		}
	}

	if a.mechanism == "" {
		return a.fail(saslerrors.NewMechanismNotSpecified())
	}

	a.callbacks = auth.NewClientCallbacks(a.mechanism, a.credentials)
	client, err := a.registry.Create(a.mechanism, auth.MechanismConfig{
		AuthorizationID: cfg.AuthorizationID,
		ServiceName:     cfg.ServiceName,
		Host:            cfg.Host,
		Options:         cfg.Options,
		Callbacks:       a.callbacks,
		Logger:          a.logger,
	})
	if err != nil {
		if saslerrors.GetKind(err) == "" {
			err = saslerrors.NewMechanismUnavailable(a.mechanism, err)
		}
		return a.fail(err)
	}
	a.client = client

	// GSSAPI predates mechanism negotiation and is accepted without it
	if a.mechanism == auth.MechanismGSSAPI {
		a.commitState(StateInitial)
	} else {
		a.commitState(StateSendHandshakeRequest)
	}
	a.logger.Debug("SASL session configured", zap.String("state", a.state.String()))
	return nil
}

// Authenticate advances the exchange as far as the transport allows without
// blocking. It returns nil while more readiness events are needed, and the
// stored fault on every call once the session has failed.
func (a *ClientAuthenticator) Authenticate() error {
	if !a.configured {
		return saslerrors.NewConfigurationError("authenticator is not configured", "", nil)
	}
	switch a.state {
	case StateFailed:
		return a.failure
	case StateComplete:
		return nil
	}
	if a.closed {
		return saslerrors.NewConfigurationError("authenticator is closed", a.mechanism, nil)
	}

	if a.netOut != nil {
		flushed, err := a.flushNetOut()
		if err != nil {
			return a.fail(err)
		}
		if !flushed {
			return nil
		}
	}

	switch a.state {
	case StateSendHandshakeRequest:
		if err := a.sendHandshakeRequest(); err != nil {
			return a.fail(err)
		}
		a.setState(StateReceiveHandshakeResponse)

	case StateReceiveHandshakeResponse:
		payload, err := a.receiveResponseOrToken()
		if err != nil {
			return a.fail(err)
		}
		if payload == nil {
			return nil
		}
		if err := a.handleHandshakeResponse(payload); err != nil {
			return a.fail(err)
		}
		a.setState(StateInitial)
		// Start the token exchange without waiting for another readiness event
		fallthrough

	case StateInitial:
		if err := a.sendToken(nil, true); err != nil {
			return a.fail(err)
		}
		a.setState(StateIntermediate)

	case StateIntermediate:
		challenge, err := a.receiveResponseOrToken()
		if err != nil {
			return a.fail(err)
		}
		if challenge == nil {
			return nil
		}
		if err := a.sendToken(challenge, false); err != nil {
			return a.fail(err)
		}
		if a.client.IsComplete() {
			a.setState(StateComplete)
			if a.netOut == nil {
				a.transport.RemoveWriteInterest()
			}
		}
	}

	return nil
}

// Complete reports whether authentication succeeded
func (a *ClientAuthenticator) Complete() bool {
	return a.state == StateComplete
}

// State returns the committed state
func (a *ClientAuthenticator) State() State {
	return a.state
}

// Pending returns the state waiting on the outbound frame to drain, if any
func (a *ClientAuthenticator) Pending() (State, bool) {
	if a.pendingState == nil {
		return 0, false
	}
	return *a.pendingState, true
}

// SessionID identifies the session in logs and traces
func (a *ClientAuthenticator) SessionID() string {
	return a.sessionID.String()
}

// Principal returns the authenticated principal once the session is COMPLETE.
//
// The name is the first principal of the credential source resolved at
// Configure. It is not re-derived from the identity the mechanism negotiated.
func (a *ClientAuthenticator) Principal() (auth.Principal, bool) {
	if a.state != StateComplete {
		return auth.Principal{}, false
	}
	return auth.NewPrincipal(a.principalName), true
}

// Err returns the stored fault of a FAILED session
func (a *ClientAuthenticator) Err() error {
	return a.failure
}

// Close disposes the mechanism client and credential callbacks. It never
// changes the committed state and is safe to call more than once.
func (a *ClientAuthenticator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	if a.client != nil {
		err = multierr.Append(err, a.client.Dispose())
	}
	if a.callbacks != nil {
		err = multierr.Append(err, a.callbacks.Close())
	}

	unfinished := a.configured && !a.state.Terminal()
	a.metrics.RecordSessionClosed(unfinished)
	if unfinished {
		a.logger.Debug("SASL session closed before completion", zap.String("state", a.state.String()))
	}
	a.endSpan(codes.Unset, "")
	return err
}

func (a *ClientAuthenticator) setState(state State) {
	if a.netOut != nil && !a.netOut.Completed() {
		a.pendingState = &state
		return
	}
	a.pendingState = nil
	a.commitState(state)
}

func (a *ClientAuthenticator) commitState(state State) {
	a.state = state
	a.metrics.RecordStateTransition(state.String())
	if a.span != nil {
		a.span.AddEvent("state", trace.WithAttributes(attribute.String("sasl.state", state.String())))
	}
	a.logger.Debug("SASL state committed", zap.String("state", state.String()))

	if state == StateComplete {
		a.metrics.RecordSessionCompleted(a.mechanism)
		a.logger.Info("SASL authentication complete", zap.String("principal", a.principalName))
		a.endSpan(codes.Ok, "")
	}
}

// fail moves the session to FAILED at once, dropping any frame in flight
func (a *ClientAuthenticator) fail(err error) error {
	if a.state == StateFailed {
		return a.failure
	}
	a.failure = err
	a.netOut = nil
	a.pendingState = nil
	a.commitState(StateFailed)

	kind := saslerrors.GetKind(err)
	a.metrics.RecordSessionFailed(a.mechanism, string(kind))
	a.logger.Warn("SASL authentication failed", zap.String("kind", string(kind)), zap.Error(err))
	if a.span != nil {
		a.span.RecordError(err)
	}
	a.endSpan(codes.Error, err.Error())
	return err
}

func (a *ClientAuthenticator) endSpan(code codes.Code, description string) {
	if a.span == nil || a.spanEnded {
		return
	}
	a.spanEnded = true
	if code != codes.Unset {
		a.span.SetStatus(code, description)
	}
	a.span.End()
}

// flushNetOut writes what the transport accepts and reports whether the
// outbound frame has drained
func (a *ClientAuthenticator) flushNetOut() (bool, error) {
	n, err := a.netOut.WriteTo(a.transport)
	a.metrics.RecordBytesSent(n)
	if err != nil {
		return false, saslerrors.NewTransportError(a.node, "write", err)
	}

	if !a.netOut.Completed() {
		a.transport.AddWriteInterest()
		return false, nil
	}

	a.netOut = nil
	a.metrics.RecordFrameSent()
	a.transport.RemoveWriteInterest()
	if a.pendingState != nil {
		state := *a.pendingState
		a.pendingState = nil
		a.commitState(state)
	}
	return true, nil
}

func (a *ClientAuthenticator) send(payload []byte) error {
	a.netOut = protocol.NewSend(a.node, payload)
	_, err := a.flushNetOut()
	return err
}

// receiveResponseOrToken returns a complete inbound payload, or nil while
// the frame is still being assembled
func (a *ClientAuthenticator) receiveResponseOrToken() ([]byte, error) {
	n, err := a.netIn.ReadFrom(a.transport)
	a.metrics.RecordBytesReceived(n)
	if err != nil {
		var invalid *protocol.InvalidReceiveError
		if errors.As(err, &invalid) {
			return nil, saslerrors.NewProtocolError("invalid frame", err)
		}
		return nil, saslerrors.NewTransportError(a.node, "read", err)
	}
	if !a.netIn.Complete() {
		return nil, nil
	}

	payload := a.netIn.Payload()
	a.netIn = protocol.NewReceive(a.node, a.maxReceiveSize)
	a.metrics.RecordFrameReceived()
	return payload, nil
}

func (a *ClientAuthenticator) nextCorrelationID() int32 {
	id := a.correlationID
	a.correlationID++
	return id
}

func (a *ClientAuthenticator) sendHandshakeRequest() error {
	header := protocol.RequestHeader{
		APIKey:        protocol.APIKeySaslHandshake,
		APIVersion:    protocol.SaslHandshakeVersion,
		CorrelationID: a.nextCorrelationID(),
		ClientID:      a.clientID,
	}
	data, err := a.codec.EncodeHandshakeRequest(header, &protocol.SaslHandshakeRequest{Mechanism: a.mechanism})
	if err != nil {
		return saslerrors.NewProtocolError("failed to encode handshake request", err)
	}
	a.currentHeader = &header

	a.metrics.RecordHandshakeRequest(a.mechanism)
	a.logger.Debug("Sending SASL handshake request", zap.Int32("correlation_id", header.CorrelationID))
	return a.send(data)
}

func (a *ClientAuthenticator) handleHandshakeResponse(payload []byte) error {
	header, body, err := a.codec.DecodeResponseHeader(payload)
	if err != nil {
		return saslerrors.NewInvalidHandshakeResponse(err)
	}
	if a.currentHeader == nil {
		return saslerrors.NewProtocolError("unexpected handshake response", nil)
	}
	if header.CorrelationID != a.currentHeader.CorrelationID {
		return saslerrors.NewCorrelationMismatch(a.currentHeader.CorrelationID, header.CorrelationID)
	}
	a.currentHeader = nil

	response, err := a.codec.DecodeHandshakeResponse(body)
	if err != nil {
		return saslerrors.NewInvalidHandshakeResponse(err)
	}

	switch response.ErrorCode {
	case protocol.ErrNone:
		a.logger.Debug("SASL handshake accepted", zap.Strings("enabled_mechanisms", response.EnabledMechanisms))
		return nil
	case protocol.ErrUnsupportedSaslMechanism:
		a.metrics.RecordHandshakeRejected(a.mechanism, protocol.ErrorName(response.ErrorCode))
		return saslerrors.NewUnsupportedMechanism(response.ErrorCode, a.mechanism, response.EnabledMechanisms)
	default:
		a.metrics.RecordHandshakeRejected(a.mechanism, protocol.ErrorName(response.ErrorCode))
		return saslerrors.NewAuthenticationError(response.ErrorCode, a.mechanism, response.EnabledMechanisms)
	}
}

// sendToken evaluates the challenge and queues the response, if the
// mechanism has one
func (a *ClientAuthenticator) sendToken(challenge []byte, initial bool) error {
	if a.client.IsComplete() {
		return nil
	}
	if initial && !a.client.HasInitialResponse() {
		return nil
	}
	if challenge == nil {
		challenge = []byte{}
	}

	token, err := a.client.CreateToken(challenge, initial)
	if err != nil {
		return a.mechanismFault(err)
	}
	if token == nil {
		return nil
	}
	return a.send(token)
}

func (a *ClientAuthenticator) mechanismFault(err error) error {
	if saslerrors.GetKind(err) != "" {
		return err
	}
	message := "an error occurred when evaluating SASL token received from the broker"
	if strings.Contains(err.Error(), "UNKNOWN_SERVER") {
		message += "." + unknownServerHint
	}
	return saslerrors.NewMechanismError(a.mechanism, message, err)
}
