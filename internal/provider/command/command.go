// Package command implements the "command" check type: runs a configured
// shell command and captures its stdout/stderr/exit code as outputValue.
// Shaped on the teacher's graph/tool.HTTPTool (name/description/typed
// Execute over a config map), generalized from HTTP to process execution.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/probelabs/visor-sub002/internal/provider"
)

// Provider runs one-shot shell commands via os/exec.
type Provider struct {
	Shell string // defaults to "sh" if empty
}

// New constructs a command Provider.
func New() *Provider { return &Provider{Shell: "sh"} }

func (*Provider) Name() string { return "command" }
func (*Provider) Description() string {
	return "runs a configured shell command and captures stdout/stderr/exit code"
}

// ValidateConfig requires a non-empty "script" string.
func (*Provider) ValidateConfig(config map[string]any) bool {
	script, ok := config["script"].(string)
	return ok && script != ""
}

// transientError marks exec errors the runtime should retry (process
// launch failures, not nonzero exit codes — those are terminal per §7
// ProviderTerminal, since a deterministic script failing is not transient).
type transientError struct{ err error }

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Retryable() bool { return true }

// Execute runs config["script"] under p.Shell -c, with an optional
// config["timeoutSeconds"] bound, returning a map with exitCode/stdout/
// stderr (command.ProviderTerminal failure on nonzero exit, §7).
func (p *Provider) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	script, _ := req.Config["script"].(string)
	if script == "" {
		return provider.Result{}, fmt.Errorf("command: missing script")
	}

	shell := p.Shell
	if shell == "" {
		shell = "sh"
	}

	runCtx := ctx
	if secs, ok := req.Config["timeoutSeconds"].(float64); ok && secs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(secs*float64(time.Second)))
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, shell, "-c", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	var terminalErr error
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			terminalErr = fmt.Errorf("command: exited %d: %s", exitCode, stderr.String())
		} else {
			return provider.Result{}, &transientError{err: fmt.Errorf("command: launch failed: %w", runErr)}
		}
	}

	output := map[string]any{
		"exitCode": exitCode,
		"stdout":   stdout.String(),
		"stderr":   stderr.String(),
	}

	if terminalErr != nil {
		return provider.Result{OutputValue: output}, terminalErr
	}
	return provider.Result{OutputValue: output}, nil
}
