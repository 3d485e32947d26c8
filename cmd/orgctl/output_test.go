package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteOutput_Formats(t *testing.T) {
	out := commandOutput{Command: "count", DurationMS: 3, Result: map[string]any{"count": 12}}

	var js bytes.Buffer
	require.NoError(t, writeOutput(&js, outputJSON, out))
	require.JSONEq(t, `{"command":"count","duration_ms":3,"result":{"count":12}}`, js.String())

	var ym bytes.Buffer
	require.NoError(t, writeOutput(&ym, outputYAML, out))
	require.Contains(t, ym.String(), "command: count\n")
	require.Contains(t, ym.String(), "duration_ms: 3\n")
	require.Contains(t, ym.String(), "  count: 12\n")

	err := writeOutput(&bytes.Buffer{}, "xml", out)
	require.Error(t, err)
	require.Equal(t, exitUsage, exitCode(err))
}
