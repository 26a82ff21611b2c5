package peerprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionHandshakeRoundTrip(t *testing.T) {
	out := ExtensionMessage{
		ExtendedMessageID: ExtensionIDHandshake,
		Payload:           NewExtensionHandshake(1234, "test 1.0", nil, 250),
	}
	b, err := out.MarshalBinary()
	require.NoError(t, err)

	var in ExtensionMessage
	require.NoError(t, in.UnmarshalBinary(b))
	msg, ok := in.Payload.(ExtensionHandshakeMessage)
	require.True(t, ok)
	assert.Equal(t, 1234, msg.MetadataSize)
	assert.Equal(t, 250, msg.RequestQueue)
	assert.Equal(t, uint8(ExtensionIDMetadata), msg.M[ExtensionKeyMetadata])
}

func TestExtensionMetadataData(t *testing.T) {
	out := ExtensionMessage{
		ExtendedMessageID: ExtensionIDMetadata,
		Payload: ExtensionMetadataMessage{
			Type:      ExtensionMetadataMessageTypeData,
			Piece:     1,
			TotalSize: 5,
			Data:      []byte("hello"),
		},
	}
	b, err := out.MarshalBinary()
	require.NoError(t, err)

	var in ExtensionMessage
	require.NoError(t, in.UnmarshalBinary(b))
	msg, ok := in.Payload.(ExtensionMetadataMessage)
	require.True(t, ok)
	assert.Equal(t, ExtensionMetadataMessageTypeData, msg.Type)
	assert.Equal(t, uint32(1), msg.Piece)
	assert.Equal(t, []byte("hello"), msg.Data)
}

func TestExtensionInvalidID(t *testing.T) {
	var in ExtensionMessage
	assert.Error(t, in.UnmarshalBinary([]byte{9, 'd', 'e'}))
}
