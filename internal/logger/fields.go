package logger

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so aggregation/querying stays stable across
// backup, restore, validate, and gc operations.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Operation identity
	KeyOperation = "operation" // backup, restore, validate, gc, ls, versions
	KeyArchive   = "archive"   // archive transport URL
	KeyBand      = "band"      // band id, e.g. b000001
	KeyApath     = "apath"     // entry path within the backup tree

	// Entry metadata
	KeyKind = "kind" // File, Dir, Symlink
	KeySize = "size" // entry or block size in bytes
	KeyMode = "mode" // unix permission mode

	// Block store
	KeyBlockHash  = "block_hash"  // content hash of a block
	KeyNewlyWritten = "newly_written"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"

	// Hunks
	KeyHunkID      = "hunk_id"
	KeyEntryCount  = "entry_count"

	// Errors and status
	KeyErrorKind = "error_kind"
	KeyStatus    = "status"
	KeyRetries   = "retries"
	KeyDuration  = "duration_ms"
)
