// Package api serves conversions over TCP and gRPC.
//
// Every message is framed as a 4-byte big-endian length followed by the
// payload. A request payload is either an Arrow IPC stream or file, which is
// converted with the connection's options, or a JSON control message:
//
//	{"type":"auth","token":"..."}
//	{"type":"options","options":{"mode":"json","codec":"snappy","start":10}}
//
// Every response starts with a status byte (0 ok, 1 error) followed by the
// converted bytes, a JSON control response or the error text.
//
// The gRPC service root2avro.Converter carries the same conversions as
// unary calls encoded with a JSON codec.
package api
