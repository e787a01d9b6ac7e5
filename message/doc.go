// Package message defines the gateway's protobuf wire schema and a
// hand-maintained codec for it.
//
// The schema (see message.proto) covers the publish/fetch HTTP surface
// and the WebSocket frame protocol. Messages marshal to canonical
// proto3 bytes: default values are omitted, map entries are emitted in
// sorted key order, and unknown fields are skipped on decode so older
// gateways interoperate with newer clients.
//
// Decode failures wrap errors.ErrParsingFailed and classify as invalid,
// which the HTTP layer maps to 400 responses. Transport failures never
// produce this error, so callers can always tell a bad payload apart
// from a broker problem.
package message
