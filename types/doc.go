// Package types holds the shared data model of the swarm core: routable
// agents, tasks, and the structured error type used across package
// boundaries.
package types
