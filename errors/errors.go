package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure raised by the SASL client
type Kind string

const (
	KindConfiguration        Kind = "configuration"
	KindProtocol             Kind = "protocol"
	KindUnsupportedMechanism Kind = "unsupported_mechanism"
	KindAuthentication       Kind = "authentication"
	KindMechanism            Kind = "mechanism"
	KindTransport            Kind = "transport"
)

// SASLError represents a general SASL client failure
type SASLError struct {
	Kind    Kind   `json:"kind"`
	Code    int16  `json:"code,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *SASLError) Error() string {
	msg := fmt.Sprintf("SASL %s error: %s", e.Kind, e.Message)
	if e.Code != 0 {
		msg = fmt.Sprintf("SASL %s error %d: %s", e.Kind, e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SASLError) Unwrap() error {
	return e.Cause
}

func (e *SASLError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = e
		return true
	}
	return false
}

// Configuration Errors

// ConfigurationError is raised while setting up a session: missing mechanism,
// unavailable mechanism, credentials the client cannot supply.
type ConfigurationError struct {
	SASLError
	Mechanism string `json:"mechanism,omitempty"`
}

func NewConfigurationError(message, mechanism string, cause error) *ConfigurationError {
	return &ConfigurationError{
		SASLError: SASLError{
			Kind:    KindConfiguration,
			Message: message,
			Cause:   cause,
		},
		Mechanism: mechanism,
	}
}

func NewMechanismNotSpecified() *ConfigurationError {
	return NewConfigurationError("SASL mechanism not specified", "", nil)
}

func NewMechanismUnavailable(mechanism string, cause error) *ConfigurationError {
	return NewConfigurationError(fmt.Sprintf("failed to create SASL client with mechanism %s", mechanism), mechanism, cause)
}

func (e *ConfigurationError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = &e.SASLError
		return true
	}
	return false
}

// Protocol Errors

// ProtocolError represents malformed frames and desynchronised responses
type ProtocolError struct {
	SASLError
	ExpectedCorrelationID int32 `json:"expected_correlation_id,omitempty"`
	ActualCorrelationID   int32 `json:"actual_correlation_id,omitempty"`
}

func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{
		SASLError: SASLError{
			Kind:    KindProtocol,
			Message: message,
			Cause:   cause,
		},
	}
}

func NewCorrelationMismatch(expected, actual int32) *ProtocolError {
	err := NewProtocolError(fmt.Sprintf("correlation id for response (%d) does not match request (%d)", actual, expected), nil)
	err.ExpectedCorrelationID = expected
	err.ActualCorrelationID = actual
	return err
}

func NewInvalidHandshakeResponse(cause error) *ProtocolError {
	return NewProtocolError("invalid SASL mechanism response, server may be expecting only GSSAPI tokens", cause)
}

func (e *ProtocolError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = &e.SASLError
		return true
	}
	return false
}

// Mechanism Negotiation Errors

// UnsupportedMechanismError is raised when the server does not enable the
// requested mechanism
type UnsupportedMechanismError struct {
	SASLError
	Mechanism         string   `json:"mechanism"`
	EnabledMechanisms []string `json:"enabled_mechanisms"`
}

func NewUnsupportedMechanism(code int16, mechanism string, enabled []string) *UnsupportedMechanismError {
	message := fmt.Sprintf("client SASL mechanism '%s' not enabled in the server, enabled mechanisms are [%s]",
		mechanism, strings.Join(enabled, ", "))
	return &UnsupportedMechanismError{
		SASLError: SASLError{
			Kind:    KindUnsupportedMechanism,
			Code:    code,
			Message: message,
		},
		Mechanism:         mechanism,
		EnabledMechanisms: enabled,
	}
}

func (e *UnsupportedMechanismError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = &e.SASLError
		return true
	}
	return false
}

// AuthenticationError represents a handshake refused with any other error code
type AuthenticationError struct {
	SASLError
	Mechanism         string   `json:"mechanism"`
	EnabledMechanisms []string `json:"enabled_mechanisms,omitempty"`
}

func NewAuthenticationError(code int16, mechanism string, enabled []string) *AuthenticationError {
	message := fmt.Sprintf("unknown error code %d, client mechanism is %s, enabled mechanisms are [%s]",
		code, mechanism, strings.Join(enabled, ", "))
	return &AuthenticationError{
		SASLError: SASLError{
			Kind:    KindAuthentication,
			Code:    code,
			Message: message,
		},
		Mechanism:         mechanism,
		EnabledMechanisms: enabled,
	}
}

func (e *AuthenticationError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = &e.SASLError
		return true
	}
	return false
}

// Mechanism Errors

// MechanismError wraps a failure of the mechanism engine while evaluating a token
type MechanismError struct {
	SASLError
	Mechanism string `json:"mechanism"`
}

func NewMechanismError(mechanism, message string, cause error) *MechanismError {
	return &MechanismError{
		SASLError: SASLError{
			Kind:    KindMechanism,
			Message: message,
			Cause:   cause,
		},
		Mechanism: mechanism,
	}
}

func (e *MechanismError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = &e.SASLError
		return true
	}
	return false
}

// Transport Errors

// TransportError represents an I/O failure while reading or writing a frame
type TransportError struct {
	SASLError
	Node      string `json:"node,omitempty"`
	Operation string `json:"operation"`
}

func NewTransportError(node, operation string, cause error) *TransportError {
	return &TransportError{
		SASLError: SASLError{
			Kind:    KindTransport,
			Message: fmt.Sprintf("%s failed for node %s", operation, node),
			Cause:   cause,
		},
		Node:      node,
		Operation: operation,
	}
}

func (e *TransportError) As(target interface{}) bool {
	if saslErr, ok := target.(**SASLError); ok {
		*saslErr = &e.SASLError
		return true
	}
	return false
}

// Helper functions for common error checking

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsProtocolError checks if an error is a ProtocolError
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

// IsUnsupportedMechanism checks if an error is an UnsupportedMechanismError
func IsUnsupportedMechanism(err error) bool {
	var mechErr *UnsupportedMechanismError
	return errors.As(err, &mechErr)
}

// IsAuthenticationError checks if an error is an AuthenticationError
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsMechanismError checks if an error is a MechanismError
func IsMechanismError(err error) bool {
	var mechErr *MechanismError
	return errors.As(err, &mechErr)
}

// IsTransportError checks if an error is a TransportError
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// GetKind returns the failure kind if the error is a SASLError
func GetKind(err error) Kind {
	var saslErr *SASLError
	if errors.As(err, &saslErr) {
		return saslErr.Kind
	}
	return ""
}
