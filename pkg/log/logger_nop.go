package log

import "context"

// NopLogger bỏ qua mọi log, dùng trong unit test
type NopLogger struct{}

func NewNopLogger() (*NopLogger, error) {
	return &NopLogger{}, nil
}

func (l *NopLogger) Info(ctx context.Context, format string, args ...interface{})  {}
func (l *NopLogger) Error(ctx context.Context, format string, args ...interface{}) {}
func (l *NopLogger) Warn(ctx context.Context, format string, args ...interface{})  {}
func (l *NopLogger) Debug(ctx context.Context, format string, args ...interface{}) {}
