package color

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateIcon(t *testing.T) {
	assert.Contains(t, StateIcon(StateOK), "✓")
	assert.Contains(t, StateIcon(StateFailed), "✗")
	assert.Contains(t, StateIcon(StateSkipped), "-")
	assert.Equal(t, " ", StateIcon("unknown"))
}

func TestRow(t *testing.T) {
	row := Row("Hostname", "foo.trycloudflare.com")
	assert.True(t, strings.HasPrefix(row, "Hostname"))
	assert.Contains(t, row, "foo.trycloudflare.com")
}
