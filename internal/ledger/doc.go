// Package ledger provides the in-process account substrate the butler
// contracts run on.
//
// A Ledger holds native balances and deployed contracts. Every state change
// happens inside Execute, which applies a single transaction under an
// exclusive lock: the attached value moves first, then the supplied function
// runs against an Env. If the function returns an error, every balance
// movement, contract storage write and emitted log is rolled back through the
// transaction journal. Committed logs are fanned out to subscribers using the
// go-ethereum event feed, in commit order.
//
// Contracts must never call back into Execute or View from inside a
// transaction. Nested calls go through Env.Call or Env.Invoke, which open a
// journal snapshot so that a failing inner call only reverts its own effects.
package ledger
