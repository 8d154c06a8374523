package bus

import "time"

// HandoffInitiatedEvent fires when a handoff begins executing against its
// primary provider.
type HandoffInitiatedEvent struct {
	HandoffID  string
	TaskID     string
	AgentID    string
	Provider   string
	Timestamp_ time.Time
}

func (e *HandoffInitiatedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *HandoffInitiatedEvent) Kind() EventKind      { return KindHandoffInitiated }

// FallbackInitiatedEvent fires the moment the primary provider is exhausted
// and the fallback provider takes over.
type FallbackInitiatedEvent struct {
	HandoffID  string
	TaskID     string
	Provider   string // fallback provider name
	Cause      string
	Timestamp_ time.Time
}

func (e *FallbackInitiatedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *FallbackInitiatedEvent) Kind() EventKind      { return KindHandoffFallbackInitiated }

// FallbackSucceededEvent fires when the fallback provider completes a task
// the primary could not.
type FallbackSucceededEvent struct {
	HandoffID  string
	TaskID     string
	Provider   string
	DurationMs int64
	Timestamp_ time.Time
}

func (e *FallbackSucceededEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *FallbackSucceededEvent) Kind() EventKind      { return KindHandoffFallbackSucceeded }

// HandoffFailedEvent fires when both providers are exhausted.
type HandoffFailedEvent struct {
	HandoffID    string
	TaskID       string
	PrimaryErr   string
	FallbackErr  string
	DurationMs   int64
	Timestamp_   time.Time
}

func (e *HandoffFailedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *HandoffFailedEvent) Kind() EventKind      { return KindHandoffFailedPermanently }

// HandoffRecoveredEvent fires when an operation succeeds after at least one
// retry.
type HandoffRecoveredEvent struct {
	HandoffID  string
	TaskID     string
	Provider   string
	Attempts   int
	Timestamp_ time.Time
}

func (e *HandoffRecoveredEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *HandoffRecoveredEvent) Kind() EventKind      { return KindHandoffRecovered }

// ToolRetryEvent fires for each retry of a tool execution.
type ToolRetryEvent struct {
	Tool       string
	Attempt    int
	Err        string
	DelayMs    int64
	Timestamp_ time.Time
}

func (e *ToolRetryEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ToolRetryEvent) Kind() EventKind      { return KindToolExecutionRetry }

// ToolFailedEvent fires when a tool execution exhausts its retries.
type ToolFailedEvent struct {
	Tool       string
	Attempts   int
	Err        string
	Timestamp_ time.Time
}

func (e *ToolFailedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ToolFailedEvent) Kind() EventKind      { return KindToolExecutionFailed }

// OpaqueEvent carries an event kind the core does not model. It exists so
// future kinds remain typed instead of travelling as untyped bags.
type OpaqueEvent struct {
	Name       string
	Payload    []byte
	Timestamp_ time.Time
}

func (e *OpaqueEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *OpaqueEvent) Kind() EventKind      { return KindOpaque }
