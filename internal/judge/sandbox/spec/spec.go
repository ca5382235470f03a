// Package spec defines the execution request and resource limits.
package spec

import "fmt"

// Limits describes the ceilings applied to one child process.
// A zero field imposes no limit for that resource, except CoreBytes where
// zero disables core dumps.
type Limits struct {
	CPUSeconds    int64 `json:"cpuSeconds"`
	RealSeconds   int64 `json:"realSeconds"`
	CoreBytes     int64 `json:"coreBytes"`
	StackBytes    int64 `json:"stackBytes"`
	RSSBytes      int64 `json:"rssBytes"`
	FileSizeBytes int64 `json:"fileSizeBytes"`
	Processes     int64 `json:"processes"`
	OpenFiles     int64 `json:"openFiles"`
	StdoutBytes   int64 `json:"stdoutBytes"`
	StderrBytes   int64 `json:"stderrBytes"`
}

// Validate rejects negative values.
func (l Limits) Validate() error {
	fields := []struct {
		name  string
		value int64
	}{
		{"max_cpu_seconds", l.CPUSeconds},
		{"max_real_seconds", l.RealSeconds},
		{"max_core_size", l.CoreBytes},
		{"max_stack_bytes", l.StackBytes},
		{"max_rss_bytes", l.RSSBytes},
		{"max_file_size_bytes", l.FileSizeBytes},
		{"max_processes", l.Processes},
		{"max_open_files", l.OpenFiles},
		{"max_stdout_bytes", l.StdoutBytes},
		{"max_stderr_bytes", l.StderrBytes},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.name, f.value)
		}
	}
	return nil
}

// RunSpec is the execution request for one child process.
type RunSpec struct {
	// Cmd is the argument vector. Shell strings arrive already expanded to /bin/sh -c.
	Cmd []string
	// Stdin is fed to the child when non-empty; otherwise the child reads /dev/null.
	Stdin []byte
	// Env replaces the environment when non-nil.
	Env     []string
	WorkDir string
	Limits  Limits
}

// ShellCommand wraps a shell string into an argument vector.
func ShellCommand(command string) []string {
	return []string{"/bin/sh", "-c", command}
}

// IsShellCommand reports whether cmd was built by ShellCommand.
func IsShellCommand(cmd []string) bool {
	return len(cmd) == 3 && cmd[0] == "/bin/sh" && cmd[1] == "-c"
}
