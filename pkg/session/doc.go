// Package session owns the live analysis sessions of a process.
//
// A Session pairs one sandbox with its dataset, a plot slot and a turn
// counter. The Manager creates sessions on demand, serializes the turns of
// each one, moves plots out of the slot into per-turn artifacts, records
// every turn in a storage.TurnStore and reaps sessions that sat idle.
package session
