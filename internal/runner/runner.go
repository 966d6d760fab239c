// Package runner executes external command line tools (pdfinfo, pdftoppm,
// tesseract) behind an interface so they can be stubbed in tests.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"invoicepipe/internal/logger"
)

// Runner runs a command and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// Exec runs commands with os/exec.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := logger.WithComponent("runner")
	start := time.Now()

	log.Debug().
		Str("cmd_line", strings.Join(append([]string{name}, args...), " ")).
		Msg("Running command")

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("cmd", name).
			Dur("duration", dur).
			Str("stderr", Truncate(errb.String(), 8<<10)).
			Msg("Command failed")
	} else {
		log.Debug().
			Str("cmd", name).
			Dur("duration", dur).
			Int("stdout_bytes", out.Len()).
			Msg("Command finished")
	}

	return out.Bytes(), errb.Bytes(), err
}

// Truncate caps s at max bytes.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
