// Package knowledge loads the static tables that drive the governance
// pipeline: risk keyword lists, PII patterns, compliance term lists, role and
// policy-family tables, time-based risk windows, auditor indicator phrases,
// advisory knowledge bundles and retention horizons.
//
// A Pack is immutable once loaded. The default pack is embedded in the binary;
// operators may point the configuration at a replacement YAML file, which is
// validated (schema version, regular expressions, window predicates) before it
// is accepted. A Store holds the active pack and can hot-reload it from disk
// when the file changes.
//
// Window predicates are CEL expressions over the integer variables year,
// month, day and weekday, for example:
//
//	when: "month == 11 && year % 4 == 0"
package knowledge
