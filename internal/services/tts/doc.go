// Package tts synthesizes script turns through an HTTP voice-cloning engine.
//
// Each turn is sent to POST /v1/generate/speech with the text, the reference
// voice file configured for the speaker's role, the language and the sampling
// temperature. The engine answers with a PCM WAV body. GET /health backs the
// readiness probe; an engine that reports model_loaded=false is not ready.
package tts
