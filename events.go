package lws

// Verbose event keys emitted on the shared event stream. These string
// identifiers are the externally visible contract of the verbose stream;
// compatible consumers match on them exactly.
const (
	// Socket lifecycle events. Payload: {socketId, bytesRead, bytesWritten}
	// with byte counters rendered as human-readable strings.
	EventSocketNew     = "server.socket.new"
	EventSocketConnect = "server.socket.connect"
	EventSocketData    = "server.socket.data"
	EventSocketDrain   = "server.socket.drain"
	EventSocketTimeout = "server.socket.timeout"
	EventSocketClose   = "server.socket.close"
	EventSocketEnd     = "server.socket.end"

	// Socket error event. Payload: {err}. Non-fatal to the server process.
	EventSocketError = "server.socket.error"

	// Server lifecycle events. "server.listening" carries the ordered list
	// of human-readable endpoint URLs; "server.close" has no payload.
	EventServerListening = "server.listening"
	EventServerClose     = "server.close"

	// TLS certificate change, emitted by the certificate watcher when the
	// configured key or cert file is rewritten on disk.
	EventServerCertChange = "server.cert.change"

	// Process statistics, emitted on a recurring timer by the orchestrator.
	// Payload: {rss, heapTotal, heapUsed, external}, all human-readable.
	EventProcessMemoryUsage = "process.memoryUsage"
)
