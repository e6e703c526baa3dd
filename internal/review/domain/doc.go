// Package domain defines the invite application review model: posts and
// their lifecycle states, votes, caller identity facts, review claims, and
// the runtime tally settings. All lifecycle rules live here; persistence
// and transport layers consume these types without re-deriving policy.
package domain
