// Package whisperx is the local transcriber, selected with
// stt.provider = "whisperx".
//
// A recording is fetched from its Source, resampled to mono 16 kHz with
// ffmpeg and transcribed by running WhisperX through uvx in a scratch
// directory. Segment texts from the JSON output are joined one per line.
// Readiness only checks that uvx and ffmpeg are on PATH; model weights are
// fetched by uvx on first use.
package whisperx
