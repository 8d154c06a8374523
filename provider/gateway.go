// Package provider contains the gateways to the local inference backends.
// Every backend implements the one Gateway interface; the orchestrator
// dispatches on types.ProviderType and never introspects concrete adapters.
package provider

import (
	"context"

	"github.com/localswarm/localswarm/types"
)

// Gateway adapts one local inference backend.
//
// Available is a best-effort liveness probe: it reports false on any failure
// and never returns an error. It is advisory only — callers use it for
// logging and ranking signals and still attempt Invoke regardless of the
// most recent probe, because availability can change between probe and call.
type Gateway interface {
	Name() string
	Type() types.ProviderType
	Available(ctx context.Context) bool
	Invoke(ctx context.Context, task *types.Task, hctx *types.HandoffContext) (string, error)
}

// Registry holds one gateway per provider type.
type Registry map[types.ProviderType]Gateway

// Lookup returns the gateway for a provider type, if registered.
func (r Registry) Lookup(pt types.ProviderType) (Gateway, bool) {
	gw, ok := r[pt]
	return gw, ok
}
