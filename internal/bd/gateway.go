// Package bd invokes the beads command-line tool as a subprocess and
// interprets its output. The bd command syntax and JSON schema are an
// external contract this package depends on but does not own.
package bd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExitNotFound is the sentinel exit code reported when the bd executable
// itself could not be started, as opposed to bd running and exiting nonzero.
const ExitNotFound = -1

// NotFoundMessage is surfaced to clients when the bd executable is missing.
const NotFoundMessage = "bd executable not found"

// ErrDecode marks output that ran to exit 0 but was not the expected JSON.
var ErrDecode = errors.New("bd produced unparsable output")

// Result holds the fully buffered outcome of one bd invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Gateway runs bd with a given argument vector and working directory.
// Arguments are always passed as a vector, never through a shell, and a
// single invocation is attempted per call. Callers needing compound
// behavior (mutate, then re-fetch) issue two calls explicitly.
type Gateway struct {
	bin string
}

func New(bin string) *Gateway {
	if bin == "" {
		bin = "bd"
	}
	return &Gateway{bin: bin}
}

// Invoke runs bd in dir and buffers stdout/stderr to completion. It never
// returns an error: a missing executable resolves with ExitNotFound, and
// bd's own failures resolve with bd's exit code and captured stderr.
func (g *Gateway) Invoke(ctx context.Context, dir string, args ...string) Result {
	cmd := exec.CommandContext(ctx, g.bin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	switch {
	case err == nil:
		res.ExitCode = 0
	case isStartFailure(err):
		res.ExitCode = ExitNotFound
		res.Stderr = NotFoundMessage
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = ExitNotFound
			res.Stderr = err.Error()
		}
	}
	return res
}

// InvokeJSON runs bd and decodes its stdout into out. Any nonzero exit is a
// tool failure whose message is the captured stderr; exit 0 with an empty
// or unparsable body is a decode failure (ErrDecode).
func (g *Gateway) InvokeJSON(ctx context.Context, dir string, out any, args ...string) error {
	res := g.Invoke(ctx, dir, args...)
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("bd exited with code %d", res.ExitCode)
		}
		return errors.New(msg)
	}

	body := strings.TrimSpace(res.Stdout)
	if body == "" {
		return fmt.Errorf("%w: empty body", ErrDecode)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func isStartFailure(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	return errors.As(err, &execErr)
}
