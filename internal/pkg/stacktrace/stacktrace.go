package stacktrace

import "strings"

// InternalPaths extracts "internal/pkg/file.go:line" frames from a
// runtime/debug.Stack dump, dropping stdlib and third-party frames.
func InternalPaths(stack []byte) []string {
	var paths []string

	for line := range strings.Lines(string(stack)) {
		line = strings.TrimSpace(line)

		at := strings.Index(line, "/internal/")
		if at == -1 || !strings.Contains(line, ".go:") {
			continue
		}

		frame := line[at+1:]
		if sp := strings.IndexByte(frame, ' '); sp != -1 {
			frame = frame[:sp]
		}
		paths = append(paths, frame)
	}

	return paths
}
