package spawn

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CaptureWindow screenshots the top-level window owned by the PID as PNG,
// using xdotool to find the window and ImageMagick's import to grab it.
// Embedded apps under Xvfb have exactly this pair available; anything else
// reports the missing tool in the error.
func CaptureWindow(ctx context.Context, pid int) ([]byte, error) {
	search := exec.CommandContext(ctx, "xdotool", "search", "--pid", strconv.Itoa(pid))
	out, err := search.Output()
	if err != nil {
		return nil, fmt.Errorf("spawn: xdotool search pid %d: %w", pid, err)
	}

	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		return nil, fmt.Errorf("spawn: pid %d owns no window", pid)
	}
	// Multiple matches are usually the same window's frame hierarchy; the
	// last id is the innermost, fully-drawn one.
	windowID := ids[len(ids)-1]

	var buf bytes.Buffer
	grab := exec.CommandContext(ctx, "import", "-window", windowID, "png:-")
	grab.Stdout = &buf
	if err := grab.Run(); err != nil {
		return nil, fmt.Errorf("spawn: import window %s: %w", windowID, err)
	}
	return buf.Bytes(), nil
}
