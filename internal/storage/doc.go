// Package storage is the durable side of the alarm engine.
//
// It holds:
//   - class schedules and the users that own alarm preferences
//   - alarm preferences, unique per (user, class)
//   - the append-only notification audit log
package storage
