package protocol

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Delimiter separates routing identities from the signed message body.
var Delimiter = []byte("<IDS|MSG>")

// Sign computes the lowercase-hex HMAC-SHA256 over the concatenated parts.
// An empty key disables signing and yields an empty signature.
func Sign(key []byte, parts ...[]byte) string {
	if len(key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, key)
	for _, part := range parts {
		mac.Write(part)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Encode serializes msg into wire frames:
// identities..., delimiter, signature, header, parent_header, metadata,
// content, buffers...
func Encode(msg *Message, key []byte) ([][]byte, error) {
	if msg == nil {
		return nil, ErrTruncated
	}
	headerRaw, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedPart, err)
	}
	parentRaw, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: parent_header: %v", ErrMalformedPart, err)
	}
	metadataRaw, err := marshalMapPart(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrMalformedPart, err)
	}
	contentRaw, err := marshalMapPart(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrMalformedPart, err)
	}

	sig := Sign(key, headerRaw, parentRaw, metadataRaw, contentRaw)

	frames := make([][]byte, 0, len(msg.Identities)+6+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames, Delimiter)
	frames = append(frames, []byte(sig))
	frames = append(frames, headerRaw, parentRaw, metadataRaw, contentRaw)
	frames = append(frames, msg.Buffers...)
	return frames, nil
}

// Decode parses wire frames into a Message. The signature is verified
// before any JSON part is interpreted; callers drop failed messages
// without replying on any channel.
func Decode(frames [][]byte, key []byte) (*Message, error) {
	delim := -1
	for i, frame := range frames {
		if bytes.Equal(frame, Delimiter) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, ErrMissingDelimiter
	}

	rest := frames[delim+1:]
	if len(rest) < 5 {
		return nil, ErrTruncated
	}
	sig := rest[0]
	headerRaw, parentRaw, metadataRaw, contentRaw := rest[1], rest[2], rest[3], rest[4]

	if len(key) > 0 {
		expected := Sign(key, headerRaw, parentRaw, metadataRaw, contentRaw)
		if !hmac.Equal([]byte(expected), sig) {
			return nil, ErrAuthentication
		}
	}

	msg := &Message{
		Identities: cloneFrames(frames[:delim]),
		Buffers:    cloneFrames(rest[5:]),
	}
	if err := json.Unmarshal(headerRaw, &msg.Header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedPart, err)
	}
	if err := json.Unmarshal(parentRaw, &msg.ParentHeader); err != nil {
		return nil, fmt.Errorf("%w: parent_header: %v", ErrMalformedPart, err)
	}
	if err := json.Unmarshal(metadataRaw, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrMalformedPart, err)
	}
	if err := json.Unmarshal(contentRaw, &msg.Content); err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrMalformedPart, err)
	}
	return msg, nil
}

// marshalMapPart renders nil maps as {} so signed parts are always objects.
func marshalMapPart(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
