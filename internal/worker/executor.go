package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/msageha/cmdrelay/internal/model"
)

// Executor runs one command record and returns its terminal status and output.
type Executor interface {
	Execute(ctx context.Context, rec model.Record) (model.Status, string)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, rec model.Record) (model.Status, string)

func (f ExecutorFunc) Execute(ctx context.Context, rec model.Record) (model.Status, string) {
	return f(ctx, rec)
}

// CommandExecutor maps command names to argv. A non-empty payload is passed
// as one extra trailing argument; it is never interpreted by a shell.
type CommandExecutor struct {
	Commands       map[string][]string
	Timeout        time.Duration
	MaxResultBytes int
}

func NewCommandExecutor(cfg model.WorkerConfig) *CommandExecutor {
	return &CommandExecutor{
		Commands:       cfg.Commands,
		Timeout:        cfg.Timeout(),
		MaxResultBytes: cfg.MaxResultBytes,
	}
}

func (e *CommandExecutor) Execute(ctx context.Context, rec model.Record) (model.Status, string) {
	argv, ok := e.Commands[rec.CommandName]
	if !ok || len(argv) == 0 {
		return model.StatusFailed, fmt.Sprintf("unknown command %q", rec.CommandName)
	}

	args := append([]string{}, argv[1:]...)
	if rec.CommandPayload != "" {
		args = append(args, rec.CommandPayload)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	output := truncate(strings.TrimSpace(out.String()), e.MaxResultBytes)
	if err == nil {
		return model.StatusSuccess, output
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s", e.Timeout)
	}
	if output == "" {
		return model.StatusFailed, err.Error()
	}
	return model.StatusFailed, truncate(output+"\n"+err.Error(), e.MaxResultBytes)
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	const marker = "…"
	if limit < len(marker) {
		return s[:runeStart(s, limit)]
	}
	return s[:runeStart(s, limit-len(marker))] + marker
}

// runeStart moves cut back to the nearest rune boundary.
func runeStart(s string, cut int) int {
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
