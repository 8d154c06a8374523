package types

// ProviderType identifies the local inference backend an agent is bound to.
// The set is closed; routing dispatches on it and never introspects concrete
// gateway implementations.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderNIM    ProviderType = "nim"
)

// Valid reports whether the provider type is one of the known backends.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderOllama, ProviderNIM:
		return true
	}
	return false
}

// Opposite returns the alternate provider type used for fallback routing.
func (p ProviderType) Opposite() ProviderType {
	if p == ProviderOllama {
		return ProviderNIM
	}
	return ProviderOllama
}

// Agent is the identity of a routable worker. Identity fields are immutable
// after registration; Workload is mutable and used for tie-breaking and
// future admission control.
type Agent struct {
	ID           string       `json:"id"`
	ProviderType ProviderType `json:"provider_type"`
	ModelName    string       `json:"model_name"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Capacity     int          `json:"capacity,omitempty"`
	Workload     int          `json:"workload,omitempty"`
}

// HasCapability reports whether the agent declares the given capability.
func (a *Agent) HasCapability(name string) bool {
	for _, c := range a.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Task is a unit of work. It is owned by the caller and never mutated by the
// core once submitted.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Priority    int    `json:"priority"`
	Input       any    `json:"input,omitempty"`
}

// RequiredCapabilities derives the capability requirements of a task from its
// type. A task with an empty type requires nothing specific.
func (t *Task) RequiredCapabilities() []string {
	if t.Type == "" {
		return nil
	}
	return []string{t.Type}
}
