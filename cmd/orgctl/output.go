package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

type commandOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

func writeResult(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	return writeOutput(cmd.OutOrStdout(), format, v)
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "", outputJSON:
		return writeJSON(w, v)
	case outputYAML:
		return writeYAML(w, v)
	default:
		return withCode(exitUsage, fmt.Errorf("unknown --output %q (expected json|yaml)", format))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	return nil
}

// writeYAML round-trips through JSON so keys match the json tags.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return withCode(exitDB, fmt.Errorf("json decode: %w", err))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return withCode(exitDB, fmt.Errorf("yaml encode: %w", err))
	}
	return enc.Close()
}
