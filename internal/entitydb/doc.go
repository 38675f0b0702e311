// Package entitydb binds entity schemas to storage backends as typed
// tables.
//
// A Database is a registry of Tables, keyed both by table name and by
// entity type, plus the transaction boundary and stream store the tables
// share. Each Table owns one entitymap.Map, generates identities, runs
// triggers around mutations and notifies observers and open cursors of
// changes.
//
// # Locking
//
// A Table is the unit of locking. Every mutation holds the table lock
// while it writes the map, runs triggers and delivers notifications.
// Reads do not take the lock. The lock is re-entrant for the context
// returned by Lock: code running under the lock (triggers, observers,
// batch helpers) may call back into the table with that context. Calling
// back with an unrelated context deadlocks.
//
// # Notifications
//
// Observers, triggers and cursor observers run synchronously on the
// mutating goroutine, inside the locked region, in registration order.
package entitydb
