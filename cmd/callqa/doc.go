// Package main implements the callqa command-line interface.
//
// The CLI runs the daemon in the foreground (serve), launches and stops it in
// the background (start, stop, restart), submits scripts and reads results
// over the daemon's HTTP API (submit, report, jobs), and inspects readiness
// without a running daemon (status, check). Configuration is loaded once per
// invocation from --config or the default location.
package main
