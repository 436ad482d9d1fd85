package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	noColor := color.NoColor
	color.NoColor = true

	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		SetOutput(nil, nil)
		color.NoColor = noColor
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		captureOutput(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := captureOutput(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Explanation\n\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := captureOutput(t)
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("context is printed in key order", func(t *testing.T) {
		_, errOut := captureOutput(t)
		context := map[string]string{
			"Session": "living-room",
			"Device":  "device-a",
		}
		err := ErrorWithContext("Test Error", "Explanation", context, []string{})
		require.Equal(t, "Test Error", err.Error())

		s := errOut.String()
		assert.Less(t, strings.Index(s, "Device: device-a"), strings.Index(s, "Session: living-room"))
	})
}

func TestStatus(t *testing.T) {
	t.Run("hidden message prints nothing", func(t *testing.T) {
		out, _ := captureOutput(t)
		Status("", true)
		assert.Empty(t, out.String())
	})

	t.Run("thumbnail hint", func(t *testing.T) {
		out, _ := captureOutput(t)
		Status("Move your device to the location shown in the image.", true)
		assert.Contains(t, out.String(), "● Move your device to the location shown in the image.\n")
		assert.Contains(t, out.String(), "reference image available")
	})
}

func TestSuccessAndWarningPrefixes(t *testing.T) {
	out, _ := captureOutput(t)
	Success("Saved\n")
	Success("✓ Already prefixed\n")
	Warning("Careful\n")

	s := out.String()
	assert.Contains(t, s, "✓ Saved\n")
	assert.NotContains(t, s, "✓ ✓")
	assert.Contains(t, s, "⚠️  Careful\n")
}
