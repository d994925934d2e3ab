// Package storage provides JSON-based persistence for repository snapshots.
//
// When a data directory is configured, the monitor saves the event repository
// to snapshot.json after every cycle and restores it on startup, so captured
// evidence survives restarts.
package storage
