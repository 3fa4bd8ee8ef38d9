package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/msageha/cmdrelay/internal/model"
)

// Desktop shows a desktop notification per delivery. Failures are logged and
// dropped; the notification was already acknowledged by the reader.
type Desktop struct {
	send   func(title, message string) error
	logger *zap.SugaredLogger
}

func NewDesktop(logger *zap.SugaredLogger) *Desktop {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Desktop{send: Send, logger: logger}
}

func (d *Desktop) Deliver(n model.Notification) {
	if err := d.send(Title(n), n.ResultPayload); err != nil {
		d.logger.Warnw("desktop notification failed", "timestamp", n.Timestamp, "error", err)
	}
}

// Send shows a notification via osascript on macOS and notify-send elsewhere.
func Send(title, message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("notify-send", "--app-name=cmdrelay", title, message)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
