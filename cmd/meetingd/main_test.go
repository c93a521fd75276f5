package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecodeCommand(t *testing.T) {
	input := strings.Join([]string{
		`{"event":{"contentBlockStart":{"start":{"text":"Hello"}}}}`,
		`{"event":{"contentBlockDelta":{"delta":{"text":", world"}}}}`,
		`{"event":{"contentBlockStop":{}}}`,
	}, "\n")

	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"decode"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", got)
	}
}
