// Package codec converts between message values and wire frames.
package codec

import "surreal-rpc/message"

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

// Codec encodes outbound requests and decodes inbound response envelopes.
// Implementations must be safe for concurrent use.
type Codec interface {
	EncodeRequest(req *message.Request) ([]byte, error)
	DecodeResponse(data []byte) (*message.Response, error)
	// PeekID extracts the correlation id from a frame that may not decode as a whole.
	PeekID(data []byte) (string, bool)
	Type() CodecType // 0=JSON
}

// GetCodec returns the codec for codecType. JSON is the only wire format, so
// unknown types fall back to it.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}
	default:
		return &JSONCodec{}
	}
}
