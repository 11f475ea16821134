// Package alarm is the alarm evaluation and delivery engine.
//
// Each pass reads today's classes and their enabled preferences, computes
// every alarm instant (class start minus lead time) in a fixed location, and
// fires alarms whose instant has passed and that carry no dedup marker for
// (preference, date). Firing appends an audit entry, pushes an inbox payload
// and finally writes the marker, so a crash mid-sequence re-fires rather than
// drops.
//
// Stores and caches are injected through the interfaces in ports.go.
package alarm
