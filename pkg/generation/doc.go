// Package generation produces the model response that the governance
// pipeline audits. The pipeline treats the generator as an external
// collaborator: any failure is replaced by a fixed apology and the request
// continues through auditing and recording.
package generation
