// Package pipeline runs a governance request through its stages in order:
//
//	screening -> policy enforcement -> generation -> output audit -> advisory -> audit logging
//
// A high-risk screen short-circuits to a blocked response that is still
// recorded. Every later failure resolves to that stage's fail-closed
// default, so Process only ever returns validation errors. Medium and high
// risk screens, and audits that need a human, raise review flags through a
// review.Emitter.
package pipeline
