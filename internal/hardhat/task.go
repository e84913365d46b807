package hardhat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

// EnvConfigPath tells the project's hardhat.config.ts where the rendered JSON lives.
const EnvConfigPath = "DEPLOYCTL_HARDHAT_CONFIG"

const maxOutputTail = 4096

// Exec runs one process. Tests replace it to avoid spawning node.
type Exec func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

func osExec(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	// #nosec G204 - command comes from local configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

type TaskRunner struct {
	Command    []string
	ProjectDir string
	ConfigPath string
	Exec       Exec
	Logger     *zap.Logger
}

type TaskResult struct {
	Args     []string      `json:"args"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"-"`
}

// Run invokes `<command> <args...>` in the project directory.
func (r TaskRunner) Run(ctx context.Context, args ...string) (TaskResult, error) {
	if len(r.Command) == 0 {
		return TaskResult{}, clierr.New(clierr.CodeConfig, "hardhat command is empty")
	}
	run := r.Exec
	if run == nil {
		run = osExec
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var env []string
	if r.ConfigPath != "" {
		env = append(env, EnvConfigPath+"="+r.ConfigPath)
	}

	full := append(append([]string(nil), r.Command[1:]...), args...)
	started := time.Now()
	logger.Info("running task", zap.String("command", r.Command[0]), zap.Strings("args", full))
	out, err := run(ctx, r.ProjectDir, env, r.Command[0], full...)
	result := TaskResult{Args: full, Output: string(out), Duration: time.Since(started)}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, clierr.Wrap(clierr.CodeUnavailable, "task timed out", ctx.Err())
		}
		logger.Warn("task failed", zap.Strings("args", full), zap.Error(err), zap.Duration("duration", result.Duration))
		return result, clierr.Wrap(clierr.CodeTaskFailed, fmt.Sprintf("%s %s failed", r.Command[0], strings.Join(args, " ")), withTail(err, out))
	}
	logger.Info("task finished", zap.Strings("args", full), zap.Duration("duration", result.Duration))
	return result, nil
}

func withTail(err error, out []byte) error {
	tail := strings.TrimSpace(string(out))
	if tail == "" {
		return err
	}
	if len(tail) > maxOutputTail {
		tail = tail[len(tail)-maxOutputTail:]
	}
	return fmt.Errorf("%w\n%s", err, tail)
}
