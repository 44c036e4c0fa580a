// Package review delivers review flags raised by the screener and the
// content auditor to human reviewers.
//
// An Emitter receives every flag. LogEmitter writes flags to the structured
// log, PubSubEmitter publishes them to a Google Cloud Pub/Sub topic, and
// MemoryQueue keeps the pending flags in process for the review API.
// MultiEmitter fans out to several emitters.
package review
