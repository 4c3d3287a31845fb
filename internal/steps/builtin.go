package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/taskrun/pkg/workflow"
)

// maxCapturedBody bounds how much of an HTTP response body is kept as a
// step result.
const maxCapturedBody = 64 * 1024

func (r *Registry) registerBuiltins() {
	_ = r.Register("sleep", r.buildSleep)
	_ = r.Register("print", r.buildPrint)
	_ = r.Register("shell", r.buildShell)
	_ = r.Register("http_request", r.buildHTTPRequest)
	_ = r.Register("fail", r.buildFail)
}

// sleep pauses for the given duration. Arguments: duration (e.g. "250ms").
func (r *Registry) buildSleep(with map[string]interface{}) (workflow.WorkFunc, error) {
	raw, err := stringArg(with, "duration", true, "")
	if err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	return func(ctx context.Context) (interface{}, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return fmt.Sprintf("slept %s", d), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil
}

// print logs a message. Arguments: message.
func (r *Registry) buildPrint(with map[string]interface{}) (workflow.WorkFunc, error) {
	message, err := stringArg(with, "message", true, "")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (interface{}, error) {
		r.logger.Info("print step", zap.String("message", message))
		return message, nil
	}, nil
}

// shell runs a command through the shell. Arguments: command.
func (r *Registry) buildShell(with map[string]interface{}) (workflow.WorkFunc, error) {
	command, err := stringArg(with, "command", true, "")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (interface{}, error) {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(output)))
		}
		return strings.TrimSpace(string(output)), nil
	}, nil
}

// http_request performs an HTTP call. Arguments: url, method (default GET).
// Non-2xx responses fail the attempt so the retry policy applies.
func (r *Registry) buildHTTPRequest(with map[string]interface{}) (workflow.WorkFunc, error) {
	url, err := stringArg(with, "url", true, "")
	if err != nil {
		return nil, err
	}
	method, err := stringArg(with, "method", false, http.MethodGet)
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(method)

	return func(ctx context.Context) (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		return map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        string(body),
		}, nil
	}, nil
}

// fail always fails. Arguments: message (optional). Useful for exercising
// retry and skip behavior in demo workflows.
func (r *Registry) buildFail(with map[string]interface{}) (workflow.WorkFunc, error) {
	message, err := stringArg(with, "message", false, "step configured to fail")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (interface{}, error) {
		return nil, fmt.Errorf("%s", message)
	}, nil
}

func stringArg(with map[string]interface{}, key string, required bool, fallback string) (string, error) {
	raw, ok := with[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing argument: %s", key)
		}
		return fallback, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	if required && value == "" {
		return "", fmt.Errorf("argument %s must not be empty", key)
	}
	return value, nil
}
