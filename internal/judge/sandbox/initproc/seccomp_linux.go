//go:build linux

package initproc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// seccompProfile is the JSON profile format, a subset of the OCI layout.
type seccompProfile struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []seccompRule `json:"syscalls"`
}

type seccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func loadSeccompProfile(path string) (seccompProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seccompProfile{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	var profile seccompProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return seccompProfile{}, fmt.Errorf("parse seccomp profile: %w", err)
	}
	return profile, nil
}

func applySeccomp(path string) error {
	profile, err := loadSeccompProfile(path)
	if err != nil {
		return err
	}
	defaultAction, err := parseSeccompAction(profile.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()

	for _, rule := range profile.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// unknown on this architecture
				continue
			}
			if err := filter.AddRuleExact(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_LOG":
		return seccomp.ActLog, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
