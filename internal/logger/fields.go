package logger

import "log/slog"

// Standard field keys for structured logging across the wire protocol,
// session manager, file operations, permission engine, and TLS credential
// manager. Use these keys consistently across all log statements for log
// aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Connection & Request
	// ========================================================================
	KeyConnectionID = "connection_id"
	KeyClientIP     = "client_ip"
	KeyClientPort   = "client_port"
	KeyCategory     = "category"
	KeySubcategory  = "subcategory"
	KeyCode         = "code"
	KeyDescription  = "description"

	// ========================================================================
	// Identity & Session
	// ========================================================================
	KeyIdentity     = "identity"
	KeySessionID    = "session_id"
	KeyIteration    = "iteration"
	KeyTokenPrefix  = "token_prefix"
	KeyGrantedUntil = "granted_until"

	// ========================================================================
	// File Operations
	// ========================================================================
	KeyPath           = "path"
	KeyOwner          = "owner"
	KeyFilename       = "filename"
	KeyCursorPosition = "cursor_position"
	KeyBytesRead      = "bytes_read"
	KeyBytesWritten   = "bytes_written"
	KeyEOF            = "eof"
	KeyLockHolder     = "lock_holder"

	// ========================================================================
	// Permission Engine
	// ========================================================================
	KeyRole     = "role"
	KeyGrantee  = "grantee"
	KeyGrantor  = "granted_by"
	KeyCapability = "capability"

	// ========================================================================
	// Connection Pool
	// ========================================================================
	KeyLane       = "lane"
	KeyUsageToken = "usage_token"

	// ========================================================================
	// TLS Credential Manager
	// ========================================================================
	KeyFingerprint = "fingerprint"
	KeyNonce       = "nonce"
	KeyValidUntil  = "valid_until"

	// ========================================================================
	// Storage Accounting
	// ========================================================================
	KeyFileCount    = "file_count"
	KeyStorageUsed  = "storage_used"
	KeyCacheHit     = "cache_hit"
	KeyEvicted      = "evicted"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }
func SpanID(id string) slog.Attr  { return slog.String(KeySpanID, id) }

// ----------------------------------------------------------------------------
// Connection & Request
// ----------------------------------------------------------------------------

func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }
func ClientIP(addr string) slog.Attr   { return slog.String(KeyClientIP, addr) }
func ClientPort(port int) slog.Attr    { return slog.Int(KeyClientPort, port) }
func Category(c string) slog.Attr      { return slog.String(KeyCategory, c) }
func Subcategory(s string) slog.Attr   { return slog.String(KeySubcategory, s) }
func Code(c string) slog.Attr          { return slog.String(KeyCode, c) }
func Description(d string) slog.Attr   { return slog.String(KeyDescription, d) }

// ----------------------------------------------------------------------------
// Identity & Session
// ----------------------------------------------------------------------------

func Identity(name string) slog.Attr  { return slog.String(KeyIdentity, name) }
func SessionID(id string) slog.Attr   { return slog.String(KeySessionID, id) }
func Iteration(n int) slog.Attr       { return slog.Int(KeyIteration, n) }
func TokenPrefix(prefix string) slog.Attr { return slog.String(KeyTokenPrefix, prefix) }

// ----------------------------------------------------------------------------
// File Operations
// ----------------------------------------------------------------------------

func Path(p string) slog.Attr             { return slog.String(KeyPath, p) }
func Owner(owner string) slog.Attr        { return slog.String(KeyOwner, owner) }
func Filename(name string) slog.Attr      { return slog.String(KeyFilename, name) }
func CursorPosition(pos int64) slog.Attr  { return slog.Int64(KeyCursorPosition, pos) }
func BytesRead(n int) slog.Attr           { return slog.Int(KeyBytesRead, n) }
func BytesWritten(n int) slog.Attr        { return slog.Int(KeyBytesWritten, n) }
func EOF(eof bool) slog.Attr              { return slog.Bool(KeyEOF, eof) }
func LockHolder(checksum uint32) slog.Attr { return slog.Any(KeyLockHolder, checksum) }

// ----------------------------------------------------------------------------
// Permission Engine
// ----------------------------------------------------------------------------

func Role(r string) slog.Attr       { return slog.String(KeyRole, r) }
func Grantee(name string) slog.Attr { return slog.String(KeyGrantee, name) }
func Grantor(name string) slog.Attr { return slog.String(KeyGrantor, name) }
func Capability(c string) slog.Attr { return slog.String(KeyCapability, c) }

// ----------------------------------------------------------------------------
// Connection Pool
// ----------------------------------------------------------------------------

func Lane(l string) slog.Attr        { return slog.String(KeyLane, l) }
func UsageToken(prefix string) slog.Attr { return slog.String(KeyUsageToken, prefix) }

// ----------------------------------------------------------------------------
// TLS Credential Manager
// ----------------------------------------------------------------------------

func Fingerprint(fp string) slog.Attr { return slog.String(KeyFingerprint, fp) }
func Nonce(n string) slog.Attr        { return slog.String(KeyNonce, n) }

// ----------------------------------------------------------------------------
// Storage Accounting
// ----------------------------------------------------------------------------

func FileCount(n int) slog.Attr      { return slog.Int(KeyFileCount, n) }
func StorageUsed(n int64) slog.Attr  { return slog.Int64(KeyStorageUsed, n) }
func CacheHit(hit bool) slog.Attr    { return slog.Bool(KeyCacheHit, hit) }
func Evicted(n int) slog.Attr        { return slog.Int(KeyEvicted, n) }

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func Attempt(n int) slog.Attr    { return slog.Int(KeyAttempt, n) }
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }
