package whisperx

// buildFFmpegNormalizeArgs converts any PCM recording to the mono 16 kHz
// 16-bit WAV WhisperX expects.
func buildFFmpegNormalizeArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}
