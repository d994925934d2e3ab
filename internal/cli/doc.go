// Package cli implements the command-line interface for ace-monitor.
//
// The cli package provides the Cobra-based CLI: serve runs the scheduler and
// the HTTP surface, scan parses one listing page on demand, and
// parse-manifest reads HLS playlist text offline. It wires config, logging,
// metrics and the monitor components together; output is text or JSON.
package cli
