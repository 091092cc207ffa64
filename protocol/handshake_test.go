package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHandshakeRequest(t *testing.T) {
	codec := NewHandshakeCodec()
	header := RequestHeader{
		APIKey:        APIKeySaslHandshake,
		APIVersion:    SaslHandshakeVersion,
		CorrelationID: 7,
		ClientID:      "cli",
	}

	data, err := codec.EncodeHandshakeRequest(header, &SaslHandshakeRequest{Mechanism: "PLAIN"})
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x11, // api key 17
		0x00, 0x00, // version 0
		0x00, 0x00, 0x00, 0x07, // correlation id
		0x00, 0x03, 'c', 'l', 'i', // client id
		0x00, 0x05, 'P', 'L', 'A', 'I', 'N', // mechanism
	}
	assert.Equal(t, expected, data)
}

func TestHandshakeRequestRoundTrip(t *testing.T) {
	codec := NewHandshakeCodec()
	header := RequestHeader{APIKey: APIKeySaslHandshake, CorrelationID: 3, ClientID: "producer-1"}

	data, err := codec.EncodeHandshakeRequest(header, &SaslHandshakeRequest{Mechanism: "SCRAM-SHA-256"})
	require.NoError(t, err)

	decodedHeader, body, err := codec.DecodeRequestHeader(data)
	require.NoError(t, err)
	assert.Equal(t, header, decodedHeader)

	request, err := codec.DecodeHandshakeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, "SCRAM-SHA-256", request.Mechanism)
}

func TestDecodeHandshakeResponse(t *testing.T) {
	codec := NewHandshakeCodec()
	data := []byte{
		0x00, 0x00, 0x00, 0x02, // correlation id
		0x00, 0x21, // error code 33
		0x00, 0x00, 0x00, 0x02, // two mechanisms
		0x00, 0x02, 'M', '1',
		0x00, 0x02, 'M', '3',
	}

	header, body, err := codec.DecodeResponseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, int32(2), header.CorrelationID)

	response, err := codec.DecodeHandshakeResponse(body)
	require.NoError(t, err)
	assert.Equal(t, ErrUnsupportedSaslMechanism, response.ErrorCode)
	assert.Equal(t, []string{"M1", "M3"}, response.EnabledMechanisms)
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	codec := NewHandshakeCodec()
	response := &SaslHandshakeResponse{ErrorCode: ErrNone, EnabledMechanisms: []string{"PLAIN", "GSSAPI"}}

	data, err := codec.EncodeHandshakeResponse(ResponseHeader{CorrelationID: 11}, response)
	require.NoError(t, err)

	header, body, err := codec.DecodeResponseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, int32(11), header.CorrelationID)

	decoded, err := codec.DecodeHandshakeResponse(body)
	require.NoError(t, err)
	assert.Equal(t, response, decoded)
}

func TestDecodeHandshakeResponseNullArray(t *testing.T) {
	codec := NewHandshakeCodec()
	decoded, err := codec.DecodeHandshakeResponse([]byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Nil(t, decoded.EnabledMechanisms)
}

func TestDecodeMalformedResponses(t *testing.T) {
	codec := NewHandshakeCodec()

	tests := []struct {
		name string
		body []byte
	}{
		{"empty", []byte{}},
		{"missing array", []byte{0x00, 0x00}},
		{"truncated array length", []byte{0x00, 0x00, 0x00, 0x00}},
		{"array longer than data", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x09, 0x00, 0x01}},
		{"truncated string", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x05, 'P', 'L'}},
		{"null element", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0xFF, 0xFF}},
		{"trailing bytes", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAA}},
		{"bad array length", []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xF0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.DecodeHandshakeResponse(tt.body)
			assert.Error(t, err)
		})
	}
}

func TestDecodeResponseHeaderTooShort(t *testing.T) {
	codec := NewHandshakeCodec()
	_, _, err := codec.DecodeResponseHeader([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestEncodeRejectsOversizedString(t *testing.T) {
	codec := NewHandshakeCodec()
	long := make([]byte, 40000)
	for i := range long {
		long[i] = 'a'
	}

	_, err := codec.EncodeHandshakeRequest(RequestHeader{}, &SaslHandshakeRequest{Mechanism: string(long)})
	assert.Error(t, err)
}

func TestErrorName(t *testing.T) {
	assert.Equal(t, "UNSUPPORTED_SASL_MECHANISM", ErrorName(ErrUnsupportedSaslMechanism))
	assert.Equal(t, "NONE", ErrorName(ErrNone))
	assert.Equal(t, "ERROR_99", ErrorName(99))
}
