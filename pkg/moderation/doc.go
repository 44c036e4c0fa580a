// Package moderation classifies text for hate, violence, sexual and self-harm
// content.
//
// Three classifiers are provided: KeywordClassifier runs in-process over a
// fixed term table, HTTPClassifier calls a remote moderation service with
// client-side rate limiting, and Guard wraps any classifier with a hard
// timeout. A failed or timed out classification is reported as flagged so
// callers always err toward the higher-risk branch.
package moderation
