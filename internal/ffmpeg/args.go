package ffmpeg

import "fmt"

// FrameParams describes one still-frame extraction.
type FrameParams struct {
	Input   string
	Output  string
	Seek    float64
	Width   int
	Quality int
}

// FrameArgs builds the ffmpeg argument list for a single JPEG frame. The seek is
// placed after -i (output seeking): slower, but it lands on the requested frame
// inside MPEG-TS segments that input seeking tends to miss.
func FrameArgs(p FrameParams) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y",
		"-i", p.Input,
		"-ss", FormatSeconds(p.Seek),
		"-vf", fmt.Sprintf("scale=%d:-1", p.Width),
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", p.Quality),
		"-an",
		p.Output,
	}
}

// ProbeArgs builds the ffprobe argument list that prints only the container duration.
func ProbeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	}
}
