package protocol

import "errors"

var (
	ErrMissingDelimiter = errors.New("protocol: missing delimiter frame")
	ErrTruncated        = errors.New("protocol: truncated message")
	ErrAuthentication   = errors.New("protocol: signature mismatch")
	ErrMalformedPart    = errors.New("protocol: malformed json part")
)
