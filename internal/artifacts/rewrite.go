package artifacts

import (
	"bufio"
	"bytes"
	"strings"
)

// RewriteManifest maps every bare segment reference in an HLS manifest
// through resolve, leaving directive lines (starting with '#') and blank
// lines untouched. The producer writes segment names as plain relative file
// names; resolve turns each into the externally fetchable URL that routes
// back through this server. Pure text transform, applied per fetch.
func RewriteManifest(manifest []byte, resolve func(segment string) string) []byte {
	var out bytes.Buffer
	out.Grow(len(manifest) * 2)

	scanner := bufio.NewScanner(bytes.NewReader(manifest))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out.WriteString(line)
		} else {
			out.WriteString(resolve(trimmed))
		}
		out.WriteByte('\n')
	}
	return out.Bytes()
}
