// Package cache holds the short-lived state of the alarm engine:
// dedup markers ("alarm X fired on date D") and per-user notification
// inboxes. Both expire; nothing here is expected to survive beyond its TTL.
package cache
