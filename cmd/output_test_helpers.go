package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// captureOutput redirects stdout for the duration of fn and returns what
// was written. Command handlers print results to stdout, so tests assert
// on the captured text. Output is drained concurrently so writes larger
// than the pipe buffer cannot block fn.
func captureOutput(t testing.TB, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	orig := os.Stdout
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = orig })

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	os.Stdout = orig
	_ = w.Close()
	out := <-done
	_ = r.Close()
	return out
}
