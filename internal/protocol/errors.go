package protocol

import "errors"

var (
	ErrInvalidMessage    = errors.New("protocol: invalid message")
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
	ErrUnknownMessage    = errors.New("protocol: unknown message type")
	ErrUnsupportedOp     = errors.New("protocol: unsupported op type")
)
