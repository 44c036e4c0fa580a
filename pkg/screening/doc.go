// Package screening scores inbound prompts for privacy, security, harmful
// content, regulatory and ethical risk and decides whether the request is
// allowed, flagged for review or blocked.
//
// Scoring is additive. Each matched category keyword adds the keyword weight
// (each category capped at 1), each PII match adds the PII weight, and the
// base is capped at 1. Compliance indicator matches and a flagged moderation
// result are then added on top and the total is capped at 1 again. Level and
// action are derived from the final score only.
//
// Screening fails closed: a cancelled context, a moderation failure or any
// internal error yields score 1, level high, action block and confidence 0.
package screening
