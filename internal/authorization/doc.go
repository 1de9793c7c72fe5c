// Package authorization resolves platform roles to privileges and
// credentials, and evaluates credential based policies.
//
// Every function here is pure: inputs are treated as read-only snapshots and
// outputs are freshly allocated, so the package is safe for concurrent use
// without locking.
package authorization
