package output

import (
	"sort"

	"go.uber.org/zap"

	"github.com/torosent/perfgauge/internal/metrics"
)

// LogDiagnostics logs, at debug level, how many samples each truncated mean
// left out. Call it once per final report.
func LogDiagnostics(log *zap.Logger, rr metrics.RunReport) {
	if log == nil {
		return
	}
	logExclusions(log, combinedOperation, rr.Combined)

	names := make([]string, 0, len(rr.ByOperation))
	for name := range rr.ByOperation {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logExclusions(log, name, rr.ByOperation[name])
	}
}

func logExclusions(log *zap.Logger, operation string, r metrics.Report) {
	for _, row := range r.LatencySummary {
		if row.Excluded == 0 {
			continue
		}
		log.Debug("truncated mean excluded samples",
			zap.String("operation", operation),
			zap.String("stat", row.Name),
			zap.Int64("excluded", row.Excluded))
	}
}
