// Package auditing scores generated responses for quality, fairness and
// regulatory disclaimer compliance and flags moderation issues.
//
// The composite score weighs quality, fairness and compliance at 0.3 each and
// the moderation term at 0.1. A response scoring at least 0.8 is compliant,
// at least 0.6 needs review, anything lower is non-compliant. Responses that
// are not compliant carry a review flag.
//
// Quality, fairness and compliance scores depend only on the request and
// response text and the active knowledge pack.
package auditing
