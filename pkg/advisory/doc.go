// Package advisory composes user-facing guidance from the outcome of the
// earlier governance stages: recommendations, required disclaimers,
// compliant alternatives and educational material.
//
// Composition is pure. The same inputs and knowledge pack always produce the
// same guidance, and no external service is consulted.
package advisory
