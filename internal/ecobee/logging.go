package ecobee

import "codeberg.org/mutker/ecobee-exporter/internal/logger"

// restyLogger routes resty's internal messages into the exporter log.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	logger.Error().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	logger.Warn().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	logger.Debug().Str("component", "resty").Msgf(format, v...)
}
