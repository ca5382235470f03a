package engine

// Config controls process runner behavior.
type Config struct {
	// HelperPath is the limit helper. Empty means the running executable,
	// started with initproc.EnvMarker set.
	HelperPath     string
	SeccompProfile string
	EnableSeccomp  bool
	// EnableCgroup places every child in its own cgroup v2 under CgroupRoot so
	// kills reach descendants that left the process group.
	EnableCgroup bool
	CgroupRoot   string
}
