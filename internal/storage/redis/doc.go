// Package redis offers Redis-backed coordination primitives for the butler
// daemon, chiefly the lease lock that elects a single keeper poller when
// several daemons share one queue.
package redis
