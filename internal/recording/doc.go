// Package recording merges synthesized turn audio into a single call
// recording and stores it.
//
// Clips must be PCM WAV files sharing one format; Merge concatenates them in
// script order with a configurable silence between turns (300 ms by default).
// The merged file is written through a Backend: FilesystemBackend writes
// atomically into the recordings directory, NATSBackend puts objects into a
// JetStream object store bucket. Handles returned by Recorder.Store are
// resolved back to bytes with Recorder.Open.
package recording
