// Package health inspects a knowledge store and reports whether it is fit
// to use.
//
// Each check looks at one aspect of the store and returns a CheckResult
// with a status and the evidence behind it:
//
//   - config: config.yml parses and validates
//   - documents: every document loads and is at the current version
//   - locks: no lock file has outlived the staleness threshold
//   - history: no history day is older than the retention window
//   - confidence: most active lessons are above the low-confidence mark
//
// Checks never fail with a Go error; a problem is a degraded or unhealthy
// result. The report status is the worst status of any check.
//
// Status is the companion summary: counts of lessons, components, patterns
// and modules, plus the time of the last discovery run.
package health
