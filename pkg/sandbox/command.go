package sandbox

import "time"

// Command timeouts. Setup commands (clone, dependency install) get the long
// bound; most operational commands use the default; short metadata calls
// (branch lookups, status checks) use the short bound.
const (
	SetupTimeout    = 900 * time.Second
	DefaultTimeout  = 300 * time.Second
	MetadataTimeout = 30 * time.Second
)

// syntheticExitCode marks a CommandResult manufactured from a transport
// error or timeout rather than a real process exit.
const syntheticExitCode = -1

// CommandResult is the canonical return shape of every sandbox command
// execution. Higher-level logic branches only on ExitCode and the string
// content of Stdout/Stderr.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited zero.
func (r CommandResult) OK() bool {
	return r.ExitCode == 0
}

// RunOptions bounds a single sandbox command execution.
type RunOptions struct {
	// Timeout bounds the command; zero means DefaultTimeout.
	Timeout time.Duration
	// Cwd is the working directory; created if missing before execution.
	Cwd string
}
