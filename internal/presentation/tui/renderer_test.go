package tui

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/glamour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Styled(t *testing.T) {
	render := newRenderer(glamour.WithStandardStyle("dark"))
	out, err := render("## Case report\n\nPatient with **chronic dyspnea**.")
	require.NoError(t, err)
	assert.Contains(t, out, "report")
	assert.Contains(t, out, "dyspnea")
	assert.NotContains(t, out, "**")
}

func TestNewRenderer(t *testing.T) {
	// Without a terminal the auto style may keep markdown markers; only the text is stable.
	out, err := NewRenderer()("## Case report\n\nPatient with **chronic dyspnea**.")
	require.NoError(t, err)
	assert.Contains(t, out, "report")
	assert.Contains(t, out, "dyspnea")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "clinical reasoning tutor")
}
