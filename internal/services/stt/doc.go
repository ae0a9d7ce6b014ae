// Package stt transcribes stored recordings through an OpenAI-compatible
// /audio/transcriptions endpoint.
//
// Recordings are fetched with a Source (the recording.Recorder in production)
// and uploaded as multipart form data with the configured model, language and
// context prompt. Uploads smaller than 1 KiB or larger than 25 MiB are
// rejected before any request is made, and an empty transcript is reported as
// services.ErrTranscription rather than passed on to analysis.
package stt
