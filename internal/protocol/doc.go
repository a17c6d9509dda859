// Package protocol owns the Jupyter wire contract and parsing primitives.
//
// Ownership boundary:
// - multipart frame layout and delimiter handling
// - HMAC-SHA256 message signing and verification
// - message/header model shared by all channels
package protocol
