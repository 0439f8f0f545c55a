// Package storage defines the turn history store and the helpers shared by
// its adapters (memory, postgres, sqlite).
//
// The store is an audit trail of answered questions. It never holds
// sandbox state; sessions still die with the process.
package storage
