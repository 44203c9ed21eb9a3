package worker

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/puntaiq/aigate/internal/logger"
)

// DefaultGracePeriod bounds the wait between SIGTERM and SIGKILL on restart
// or shutdown when the spec does not set one.
const DefaultGracePeriod = 5 * time.Second

// Spec describes the prediction worker process. It is read once when the
// Supervisor is constructed; the listening port is exported to the child as
// PORT so the probe and proxy address stay in lockstep with the process env.
type Spec struct {
	Name        string        `json:"name"`
	Command     string        `json:"command"`      // command line to start the worker
	WorkDir     string        `json:"work_dir"`     // optional working dir
	Env         []string      `json:"env"`          // optional extra env (KEY=VALUE)
	Port        int           `json:"port"`         // worker listening port, exported as PORT
	GracePeriod time.Duration `json:"grace_period"` // SIGTERM grace before SIGKILL
	Log         logger.Config `json:"log"`          // file sink for captured output
}

func (s *Spec) name() string {
	if s.Name != "" {
		return s.Name
	}
	return "worker"
}

func (s *Spec) gracePeriod() time.Duration {
	if s.GracePeriod > 0 {
		return s.GracePeriod
	}
	return DefaultGracePeriod
}

func (s *Spec) env() []string {
	env := append([]string(nil), s.Env...)
	if s.Port > 0 {
		env = append(env, fmt.Sprintf("PORT=%d", s.Port))
	}
	return env
}

// BuildCommand constructs an *exec.Cmd for the spec's command line.
// It avoids invoking a shell when not necessary, and it respects an explicit
// shell invocation already present in the command string (e.g. "sh -c '...'"),
// avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return nil, fmt.Errorf("worker: empty command")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// Absolute shell path avoids PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC), nil
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr), nil
	}
	parts := strings.Fields(cmdStr)
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(parts[0], args...), nil
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It preserves the substring after "-c " verbatim
// to avoid breaking quoting, stripping one pair of wrapping quotes if present.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// Handle identifies one live run of the worker process. It is created on
// start and invalidated on exit or restart; at most one is live at a time.
// The Generation increases on every start so concurrent observers can discard
// results computed against a prior run.
type Handle struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Command    string    `json:"command"`
	WorkDir    string    `json:"work_dir"`
	Generation uint64    `json:"generation"`
}

// Uptime reports how long this run has been alive.
func (h *Handle) Uptime(now time.Time) time.Duration {
	if h == nil || h.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(h.StartedAt)
}
