// Package logs reads the daemon log file for the CLI.
//
// Last returns the newest lines together with the byte offset of the end of
// the file; Follow resumes from that offset and delivers appended lines until
// its context ends. MatchesJob filters console and JSON lines by job id.
package logs
