// Package policy derives the enforcement rules for a request from the
// requester's role, the request context and the time-based risk windows that
// are active when the request arrives.
//
// # Families
//
// The security and ethical_ai families apply to every request. data_privacy
// applies when the context marks the data as personal, sensitive, medical or
// financial. The regulatory family applies when the industry tag or a context
// flag selects a framework (finance selects SOX, healthcare HIPAA, the
// payment_processing flag PCI_DSS).
//
// # Tightening
//
// Role rules are the starting point. Family and window modifiers are merged
// on top of them and can only make the result stricter: boolean requirements
// are OR-ed, the session timeout takes the smallest positive value and
// control labels keep the strongest level.
//
// # Failure
//
// Evaluate never returns an error. On any internal failure the maximally
// restrictive rule set of the knowledge pack is returned and the decision is
// marked as a fallback.
package policy
