package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderASCII(t *testing.T) {
	output := RenderASCII(Build(supportGraph(t), executedState()))

	assert.True(t, strings.HasPrefix(output, "=== Support ===\n"))
	assert.Contains(t, output, "Support Agent")
	assert.Contains(t, output, "(agentNode)")
	assert.Contains(t, output, "[OK] #1")
	assert.Contains(t, output, "[FAIL] #2")
	assert.Contains(t, output, "[PEND] #3")
	assert.Contains(t, output, "▼")
	assert.Contains(t, output, "tool ┈→ agent")
	assert.Contains(t, output, "agent ─→ reply")
}

func TestMakeBox_Width(t *testing.T) {
	box := makeBox(&Node{ID: "x", Label: "x", Type: "x"})

	// The type line is skipped when it repeats the label.
	assert.Len(t, box.lines, 3)
	assert.Equal(t, 5, box.width)
	assert.Equal(t, "│ x │", box.lines[1])
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "", statusTag("unknown"))
}
