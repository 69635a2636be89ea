package metrics

import "time"

// Outcome describes a single remote call as reported by a protocol adapter.
type Outcome struct {
	Success bool
	// Bytes counts payload bytes moved by the call in either direction.
	Bytes    uint64
	Status   string
	Duration time.Duration
	// Operation names the logical operation; empty means the call only
	// contributes to the combined counters.
	Operation string
	// Fatal tells the runner to stop issuing new calls.
	Fatal bool
}

// Succeeded builds a successful outcome.
func Succeeded(status string, bytes uint64, d time.Duration) Outcome {
	return Outcome{Success: true, Status: status, Bytes: bytes, Duration: d}
}

// Failed builds a failed outcome.
func Failed(status string, d time.Duration) Outcome {
	return Outcome{Status: status, Duration: d}
}

// WithOperation returns a copy of o attributed to the named operation.
func (o Outcome) WithOperation(name string) Outcome {
	o.Operation = name
	return o
}

// WithBytes returns a copy of o carrying n processed bytes.
func (o Outcome) WithBytes(n uint64) Outcome {
	o.Bytes = n
	return o
}

// AsFatal returns a copy of o marked as fatal.
func (o Outcome) AsFatal() Outcome {
	o.Fatal = true
	return o
}
