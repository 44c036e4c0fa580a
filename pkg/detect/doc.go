// Package detect provides the text matching primitives shared by the risk
// screener and the content auditor: Unicode normalization, keyword matching
// and regular expression PII detection.
//
// Keyword matching works on normalized text (NFKC, case folded) and accepts
// any occurrence of a term, inflected and compound forms included: "weapon"
// matches "weapons" and "health" matches "healthcare".
package detect
