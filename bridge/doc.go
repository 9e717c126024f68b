// Package bridge connects the Arrow column store to the converter.
//
// The TCP, gRPC and ZeroMQ transports hand their request payloads to a
// Converter:
//
//	Arrow IPC bytes -> arrow.RecordSource -> core.Convert -> output sink bytes
//
// The converter keeps no per-request state, so one instance serves every
// connection.
package bridge
