// Package api exposes the butler contracts over a JSON REST interface. Every
// write endpoint maps to one ledger transaction; amounts travel as decimal
// strings and byte payloads as 0x-prefixed hex.
package api
