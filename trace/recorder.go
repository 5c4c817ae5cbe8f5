package trace

import (
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
)

// ChainRecord brackets one correlation id's lifetime.
type ChainRecord struct {
	CorrelationID string
	Started       time.Time
	Ended         time.Time
	Success       bool
	Error         string
}

// Duration returns the chain's wall-clock time, or zero while it is
// still open.
func (c ChainRecord) Duration() time.Duration {
	if c.Ended.IsZero() {
		return 0
	}

	return c.Ended.Sub(c.Started)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
}

// Recorder tracks open and finished chains keyed by correlation id.
type Recorder struct {
	mu     sync.Mutex
	chains map[string]*ChainRecord
	logger logging.Logger
}

// NewRecorder creates an empty Recorder.
func NewRecorder(optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Recorder{chains: map[string]*ChainRecord{}, logger: opts.Logger}
}

// StartChain opens a record for rc's correlation id. Starting an already
// open id resets it.
func (r *Recorder) StartChain(rc *core.RunContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[rc.CorrelationID] = &ChainRecord{
		CorrelationID: rc.CorrelationID,
		Started:       time.Now(),
	}

	r.logger.Debug("trace.chain.start", "correlation_id", rc.CorrelationID)
}

// EndChain closes the record for rc's correlation id. Ending an unknown
// id is a no-op.
func (r *Recorder) EndChain(rc *core.RunContext, success bool, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.chains[rc.CorrelationID]
	if !ok {
		return
	}

	rec.Ended = time.Now()
	rec.Success = success
	rec.Error = errMsg

	r.logger.Debug("trace.chain.end", "correlation_id", rc.CorrelationID, "success", success, "duration", rec.Duration())
}

// Chain returns a copy of the record for the given correlation id.
func (r *Recorder) Chain(correlationID string) (ChainRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.chains[correlationID]
	if !ok {
		return ChainRecord{}, false
	}

	return *rec, true
}
