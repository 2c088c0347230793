package storage

import "go.uber.org/zap"

// LogWriter is the fallback EventWriter when no database is configured.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *CallEvent) {
	w.logger.Info("tool_call",
		zap.String("request_id", event.RequestID),
		zap.String("tool", event.Tool),
		zap.String("method", event.Method),
		zap.String("builder", event.Builder),
		zap.String("transport", event.Transport),
		zap.String("outcome", event.Outcome),
		zap.Uint16("http_status", event.HTTPStatus),
		zap.Uint16("upstream_status", event.UpstreamStatus),
		zap.String("args_hash", event.ArgsHash),
		zap.Uint32("args_size", event.ArgsSize),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}

// MultiWriter fans each event out to several writers.
type MultiWriter []EventWriter

func (m MultiWriter) Write(event *CallEvent) {
	for _, w := range m {
		w.Write(event)
	}
}

func (m MultiWriter) Close() {
	for _, w := range m {
		w.Close()
	}
}

var (
	_ EventWriter = (*LogWriter)(nil)
	_ EventWriter = (*ClickHouseWriter)(nil)
	_ EventWriter = (*PostgresWriter)(nil)
	_ EventWriter = MultiWriter(nil)
)
