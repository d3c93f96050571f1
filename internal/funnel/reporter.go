package funnel

import (
	"time"

	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/models"
)

// Reporter receives usage events and query lifecycle notifications
type Reporter interface {
	ReportFunnelCalculated(eventCount, actionCount int, interval string, success bool, message string)
	StartQuery(queryID string)
	EndQuery(queryID string, view models.InsightType, lastRefresh *time.Time, err error)
}

// LogReporter writes reports to the application logger
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a reporter; a nil logger uses the shared one
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = logging.L()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportFunnelCalculated(eventCount, actionCount int, interval string, success bool, message string) {
	fields := []zap.Field{
		zap.Int("event_count", eventCount),
		zap.Int("action_count", actionCount),
		zap.String("interval", interval),
		zap.Bool("success", success),
	}
	if !success {
		r.logger.Warn("funnel calculation failed", append(fields, zap.String("error", message))...)
		return
	}
	r.logger.Info("funnel calculated", fields...)
}

func (r *LogReporter) StartQuery(queryID string) {
	r.logger.Debug("query started", zap.String("query_id", queryID))
}

func (r *LogReporter) EndQuery(queryID string, view models.InsightType, lastRefresh *time.Time, err error) {
	fields := []zap.Field{
		zap.String("query_id", queryID),
		zap.String("view", string(view)),
	}
	if lastRefresh != nil {
		fields = append(fields, zap.Time("last_refresh", *lastRefresh))
	}
	if err != nil {
		r.logger.Debug("query failed", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Debug("query finished", fields...)
}

// nopReporter discards everything
type nopReporter struct{}

func (nopReporter) ReportFunnelCalculated(int, int, string, bool, string) {}
func (nopReporter) StartQuery(string) {}
func (nopReporter) EndQuery(string, models.InsightType, *time.Time, error) {}
