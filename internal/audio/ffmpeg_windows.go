//go:build windows

package audio

import "strconv"

// buildFFmpegCaptureArgs constructs FFmpeg arguments for mono S16LE capture on Windows.
// Note: -nostdin is NOT used on Windows to allow graceful shutdown via 'q' command.
func buildFFmpegCaptureArgs(inputFormat, device string, sampleRate int) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}
