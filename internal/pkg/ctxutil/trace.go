package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries request correlation ids from the HTTP edge into jobs.
type TraceData struct {
	TraceID   string
	RequestID string
	JobRunID  string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns the correlation ids present on ctx as logger key/values.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 6)
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.JobRunID != "" {
		out = append(out, "job_run_id", td.JobRunID)
	}
	return out
}
