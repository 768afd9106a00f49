package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the TDS session engine.
// Use these keys consistently so aggregation/querying stays consistent.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Session & transport
	KeySessionID     = "session_id"     // client-generated correlation UUID
	KeySPID          = "spid"           // server-assigned session id
	KeyServerAddr    = "server_addr"    // remote server address
	KeyPacketNo      = "packet_no"      // current outbound packet number
	KeyPacketType    = "packet_type"    // TDS message type byte
	KeyPacketStatus  = "packet_status"  // TDS header status bitmask
	KeyPacketLen     = "packet_len"     // total packet length including header
	KeyBytesSent     = "bytes_sent"     // bytes written to the transport
	KeyBytesReceived = "bytes_received" // bytes read from the transport

	// Timeout & cancellation
	KeyTimeoutID   = "timeout_id"   // monotonic timeout identity
	KeyTimeoutMs   = "timeout_ms"   // configured timeout in milliseconds
	KeyAttention   = "attention"    // attention phase: sent, acked, grace_expired
	KeyCancelOwner = "cancel_owner" // operation id the cancel targeted

	// Transaction
	KeyTransactionID   = "transaction_id"   // 64-bit MARS transaction token
	KeyTransactionType = "transaction_type" // LocalFromTSQL, LocalFromAPI, Delegated, ...
	KeyTxnState        = "txn_state"        // pending, active, aborted, committed, unknown (transaction.State.String)
	KeyOpenResults     = "open_results"     // open result-set count under a transaction
	KeySavepoint       = "savepoint"        // named savepoint

	// Authentication
	KeyAuthStrategy = "auth_strategy" // Kerberos, NTLM, AzureADPassword, ...
	KeySPN          = "spn"           // service principal name

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyOperation  = "operation"
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// SessionID returns a slog.Attr for the client-generated correlation id.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// SPID returns a slog.Attr for the server-assigned session id.
func SPID(spid uint16) slog.Attr { return slog.Any(KeySPID, spid) }

// ServerAddr returns a slog.Attr for the remote server address.
func ServerAddr(addr string) slog.Attr { return slog.String(KeyServerAddr, addr) }

// PacketNo returns a slog.Attr for the current outbound packet number.
func PacketNo(n uint8) slog.Attr { return slog.Any(KeyPacketNo, n) }

// PacketType returns a slog.Attr for the TDS message type byte.
func PacketType(t byte) slog.Attr { return slog.Any(KeyPacketType, t) }

// PacketStatus returns a slog.Attr for the TDS header status bitmask.
func PacketStatus(status byte) slog.Attr { return slog.Any(KeyPacketStatus, status) }

// PacketLen returns a slog.Attr for total packet length including header.
func PacketLen(n uint16) slog.Attr { return slog.Any(KeyPacketLen, n) }

// BytesSent returns a slog.Attr for bytes written to the transport.
func BytesSent(n int) slog.Attr { return slog.Int(KeyBytesSent, n) }

// BytesReceived returns a slog.Attr for bytes read from the transport.
func BytesReceived(n int) slog.Attr { return slog.Int(KeyBytesReceived, n) }

// TimeoutID returns a slog.Attr for the monotonic timeout identity.
func TimeoutID(id uint64) slog.Attr { return slog.Uint64(KeyTimeoutID, id) }

// TimeoutMs returns a slog.Attr for the configured timeout in milliseconds.
func TimeoutMs(ms int) slog.Attr { return slog.Int(KeyTimeoutMs, ms) }

// Attention returns a slog.Attr describing an attention-sequence phase.
func Attention(phase string) slog.Attr { return slog.String(KeyAttention, phase) }

// CancelOwner returns a slog.Attr for the operation id a cancel targeted.
func CancelOwner(id int64) slog.Attr { return slog.Int64(KeyCancelOwner, id) }

// TransactionID returns a slog.Attr for the 64-bit MARS transaction token.
func TransactionID(id uint64) slog.Attr { return slog.Uint64(KeyTransactionID, id) }

// TransactionType returns a slog.Attr for the transaction's origin type.
func TransactionType(t string) slog.Attr { return slog.String(KeyTransactionType, t) }

// TxnState returns a slog.Attr for the internal transaction's state.
func TxnState(s string) slog.Attr { return slog.String(KeyTxnState, s) }

// OpenResults returns a slog.Attr for the open result-set count.
func OpenResults(n int32) slog.Attr { return slog.Any(KeyOpenResults, n) }

// Savepoint returns a slog.Attr for a named savepoint.
func Savepoint(name string) slog.Attr { return slog.String(KeySavepoint, name) }

// AuthStrategy returns a slog.Attr for the selected auth strategy.
func AuthStrategy(s string) slog.Attr { return slog.String(KeyAuthStrategy, s) }

// SPN returns a slog.Attr for the service principal name used for Kerberos auth.
func SPN(spn string) slog.Attr { return slog.String(KeySPN, spn) }

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code.
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// Operation returns a slog.Attr for the sub-operation name.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
