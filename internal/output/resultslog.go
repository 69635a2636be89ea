package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/perfgauge/internal/metrics"
)

// ResultsLog appends one JSON line per report to a file shared between
// concurrent perfgauge processes. A sibling ".lock" file serialises writers.
type ResultsLog struct {
	path string
	lock *flock.Flock
	now  func() time.Time
}

// ResultsLogEntry is one line of the results log.
type ResultsLogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Report    metrics.RunReport `json:"report"`
}

// NewResultsLog returns a reporter appending to path.
func NewResultsLog(path string) *ResultsLog {
	return &ResultsLog{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

func (l *ResultsLog) Report(rr metrics.RunReport) error {
	line, err := json.Marshal(ResultsLogEntry{Timestamp: l.now().UTC(), Report: rr})
	if err != nil {
		return fmt.Errorf("encode results log entry: %w", err)
	}
	line = append(line, '\n')

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock results log: %w", err)
	}
	defer l.lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append results log: %w", err)
	}
	return f.Close()
}

func (l *ResultsLog) Reset() {}
