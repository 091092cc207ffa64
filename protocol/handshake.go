package protocol

import (
	"fmt"
)

// API keys of the host protocol used during authentication
const (
	APIKeySaslHandshake int16 = 17
)

// SaslHandshakeVersion is the only handshake version this client speaks
const SaslHandshakeVersion int16 = 0

// Error codes carried in a handshake response
const (
	ErrNone                     int16 = 0
	ErrUnknownServerError       int16 = -1
	ErrUnsupportedVersion       int16 = 35
	ErrUnsupportedSaslMechanism int16 = 33
	ErrIllegalSaslState         int16 = 34
	ErrSaslAuthenticationFailed int16 = 58
)

var errorNames = map[int16]string{
	ErrNone:                     "NONE",
	ErrUnknownServerError:       "UNKNOWN_SERVER_ERROR",
	ErrUnsupportedVersion:       "UNSUPPORTED_VERSION",
	ErrUnsupportedSaslMechanism: "UNSUPPORTED_SASL_MECHANISM",
	ErrIllegalSaslState:         "ILLEGAL_SASL_STATE",
	ErrSaslAuthenticationFailed: "SASL_AUTHENTICATION_FAILED",
}

// ErrorName returns the symbolic name of a protocol error code
func ErrorName(code int16) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", code)
}

// RequestHeader precedes every request body.
// Format: (int16 api_key) + (int16 api_version) + (int32 correlation_id) + (nullable string client_id)
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      string
}

// ResponseHeader precedes every response body.
// Format: (int32 correlation_id)
type ResponseHeader struct {
	CorrelationID int32
}

// SaslHandshakeRequest asks the server to authenticate with the named mechanism
type SaslHandshakeRequest struct {
	Mechanism string
}

// SaslHandshakeResponse carries the server verdict and its enabled mechanisms
type SaslHandshakeResponse struct {
	ErrorCode         int16
	EnabledMechanisms []string
}

// HandshakeCodec encodes and decodes the mechanism-negotiation exchange.
// Frames produced here are payloads; the 4-byte size prefix belongs to Send.
type HandshakeCodec struct{}

// NewHandshakeCodec creates the default codec
func NewHandshakeCodec() *HandshakeCodec {
	return &HandshakeCodec{}
}

// EncodeHandshakeRequest serializes the header followed by the request body
func (c *HandshakeCodec) EncodeHandshakeRequest(header RequestHeader, request *SaslHandshakeRequest) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	writeInt16(buf, header.APIKey)
	writeInt16(buf, header.APIVersion)
	writeInt32(buf, header.CorrelationID)
	clientID := header.ClientID
	if err := writeNullableString(buf, &clientID); err != nil {
		return nil, fmt.Errorf("client id: %w", err)
	}

	if err := writeString(buf, request.Mechanism); err != nil {
		return nil, fmt.Errorf("mechanism: %w", err)
	}

	return detach(buf), nil
}

// DecodeResponseHeader parses the response header and returns the remaining body
func (c *HandshakeCodec) DecodeResponseHeader(payload []byte) (ResponseHeader, []byte, error) {
	correlationID, offset, err := readInt32(payload, 0)
	if err != nil {
		return ResponseHeader{}, nil, fmt.Errorf("response header: %w", err)
	}
	return ResponseHeader{CorrelationID: correlationID}, payload[offset:], nil
}

// DecodeHandshakeResponse parses a handshake response body
func (c *HandshakeCodec) DecodeHandshakeResponse(body []byte) (*SaslHandshakeResponse, error) {
	errorCode, offset, err := readInt16(body, 0)
	if err != nil {
		return nil, fmt.Errorf("error code: %w", err)
	}

	mechanisms, offset, err := readStringArray(body, offset)
	if err != nil {
		return nil, fmt.Errorf("enabled mechanisms: %w", err)
	}

	if offset != len(body) {
		return nil, fmt.Errorf("handshake response has %d trailing bytes", len(body)-offset)
	}

	return &SaslHandshakeResponse{
		ErrorCode:         errorCode,
		EnabledMechanisms: mechanisms,
	}, nil
}

// DecodeRequestHeader parses a request header and returns the remaining body
func (c *HandshakeCodec) DecodeRequestHeader(payload []byte) (RequestHeader, []byte, error) {
	var header RequestHeader
	var err error
	offset := 0

	if header.APIKey, offset, err = readInt16(payload, offset); err != nil {
		return header, nil, fmt.Errorf("api key: %w", err)
	}
	if header.APIVersion, offset, err = readInt16(payload, offset); err != nil {
		return header, nil, fmt.Errorf("api version: %w", err)
	}
	if header.CorrelationID, offset, err = readInt32(payload, offset); err != nil {
		return header, nil, fmt.Errorf("correlation id: %w", err)
	}

	clientID, offset, err := readNullableString(payload, offset)
	if err != nil {
		return header, nil, fmt.Errorf("client id: %w", err)
	}
	if clientID != nil {
		header.ClientID = *clientID
	}

	return header, payload[offset:], nil
}

// DecodeHandshakeRequest parses a handshake request body
func (c *HandshakeCodec) DecodeHandshakeRequest(body []byte) (*SaslHandshakeRequest, error) {
	mechanism, offset, err := readString(body, 0)
	if err != nil {
		return nil, fmt.Errorf("mechanism: %w", err)
	}
	if offset != len(body) {
		return nil, fmt.Errorf("handshake request has %d trailing bytes", len(body)-offset)
	}
	return &SaslHandshakeRequest{Mechanism: mechanism}, nil
}

// EncodeHandshakeResponse serializes the response header followed by the body
func (c *HandshakeCodec) EncodeHandshakeResponse(header ResponseHeader, response *SaslHandshakeResponse) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	writeInt32(buf, header.CorrelationID)
	writeInt16(buf, response.ErrorCode)
	if err := writeStringArray(buf, response.EnabledMechanisms); err != nil {
		return nil, fmt.Errorf("enabled mechanisms: %w", err)
	}

	return detach(buf), nil
}
