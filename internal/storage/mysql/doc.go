// Package mysql persists indexed ledger events in MySQL. It owns the
// connection pool settings, the embedded schema migrations and the event
// store used by the indexer when the daemon runs with a durable backend.
package mysql
