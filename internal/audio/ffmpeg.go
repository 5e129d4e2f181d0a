//go:build !linux && !windows

package audio

import "strconv"

// buildFFmpegCaptureArgs constructs FFmpeg arguments for mono S16LE capture.
func buildFFmpegCaptureArgs(inputFormat, device string, sampleRate int) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}
