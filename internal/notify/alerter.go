package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// Alerter surfaces a notification through a native desktop channel. It is
// best effort: callers log failures and carry on.
type Alerter interface {
	Alert(title, body string) error
}

// NopAlerter discards alerts.
type NopAlerter struct{}

func (NopAlerter) Alert(string, string) error { return nil }

// ErrAlertUnsupported is returned when no native notifier exists for the platform.
var ErrAlertUnsupported = errors.New("native alerts not supported on this platform")

const alertTimeout = 5 * time.Second

// CommandAlerter shells out to the platform notifier: osascript on macOS,
// notify-send elsewhere.
type CommandAlerter struct {
	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) error
	goos string
}

// NewCommandAlerter returns an alerter for the current platform.
func NewCommandAlerter() *CommandAlerter {
	return &CommandAlerter{run: runCommand, goos: runtime.GOOS}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (a *CommandAlerter) Alert(title, body string) error {
	name, args, err := a.command(title, body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	if err := a.run(ctx, name, args...); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}

func (a *CommandAlerter) command(title, body string) (string, []string, error) {
	switch a.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--app-name=jobdesk", title, body}, nil
	default:
		return "", nil, ErrAlertUnsupported
	}
}
