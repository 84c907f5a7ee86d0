// Package logging builds the process-wide zap.Logger.
package logging

import "go.uber.org/zap"

// New builds a production logger, or a development one
// (console-encoded, debug level) when env is "development".
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// RequestFields are the structured fields attached to every per-request
// log line.
func RequestFields(appID, platform, statusCode, errorKind string) []zap.Field {
	fields := []zap.Field{
		zap.String("app_id", appID),
		zap.String("platform", platform),
		zap.String("status_code", statusCode),
	}
	if errorKind != "" {
		fields = append(fields, zap.String("error_kind", errorKind))
	}
	return fields
}
