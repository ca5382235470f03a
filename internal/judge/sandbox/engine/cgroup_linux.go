//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"autotest/internal/judge/sandbox/spec"

	"github.com/google/uuid"
)

// runCgroup is a cgroup v2 directory holding exactly one child and its descendants.
// All methods accept a nil receiver, which stands for "cgroups disabled".
type runCgroup struct {
	path string
	dir  *os.File
}

func createRunCgroup(root string, limits spec.Limits) (*runCgroup, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	cgroupPath := filepath.Join(root, "autotest-"+uuid.NewString())
	if err := os.Mkdir(cgroupPath, 0750); err != nil {
		return nil, fmt.Errorf("create cgroup path: %w", err)
	}
	cg := &runCgroup{path: cgroupPath}
	if err := applyCgroupLimits(cgroupPath, limits); err != nil {
		cg.cleanup()
		return nil, err
	}
	dir, err := os.Open(cgroupPath)
	if err != nil {
		cg.cleanup()
		return nil, fmt.Errorf("open cgroup: %w", err)
	}
	cg.dir = dir
	return cg, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.Limits) error {
	pidsValue := "max"
	if limits.Processes > 0 {
		pidsValue = strconv.FormatInt(limits.Processes, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.RSSBytes > 0 {
		if err := writeCgroupValue(cgroupPath, "memory.max", strconv.FormatInt(limits.RSSBytes, 10)); err != nil {
			return err
		}
	}
	return nil
}

// fd is the descriptor passed as SysProcAttr.CgroupFD.
func (c *runCgroup) fd() (int, bool) {
	if c == nil || c.dir == nil {
		return 0, false
	}
	return int(c.dir.Fd()), true
}

func (c *runCgroup) kill() error {
	if c == nil {
		return nil
	}
	killPath := filepath.Join(c.path, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func (c *runCgroup) oomKilled() bool {
	if c == nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(c.path, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			val, _ := strconv.ParseInt(fields[1], 10, 64)
			return val > 0
		}
	}
	return false
}

func (c *runCgroup) memoryPeakKB() int64 {
	if c == nil {
		return 0
	}
	val, err := readCgroupInt(c.path, "memory.peak")
	if err != nil {
		return 0
	}
	return val / 1024
}

// cleanup removes the cgroup. The directory can only go once it is empty,
// which holds after the child has been reaped.
func (c *runCgroup) cleanup() {
	if c == nil {
		return
	}
	if c.dir != nil {
		_ = c.dir.Close()
	}
	_ = os.Remove(c.path)
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func writeCgroupValue(cgroupPath, name, value string) error {
	path := filepath.Join(cgroupPath, name)
	if err := os.WriteFile(path, []byte(value), 0640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
