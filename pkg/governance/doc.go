// Package governance defines the data model shared by every stage of the
// governance pipeline: the inbound request, the per-stage results and the
// error taxonomy.
//
// # Stages
//
// Each stage produces one immutable result type:
//
//	Request → RiskAssessment (screening)
//	        → PolicyDecision (policy)
//	        → AuditResult    (auditing)
//	        → AdvisoryGuidance (advisory)
//
// The evidence package turns the collected results into an AuditRecord.
//
// # Scores
//
// Every score field is clamped to [0,1] with Clamp. Levels, actions and
// statuses are derived from scores through LevelForScore, ActionForLevel and
// StatusForScore; stages never assign them directly.
package governance
