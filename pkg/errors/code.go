package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Test specification & configuration errors
// 13100-13199: Sandbox errors
// 13200-13299: Execution internals

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	Canceled            ErrorCode = 10004

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidValue     ErrorCode = 10302

	// ========== Specification & Configuration (13000-13099) ==========

	SpecificationError ErrorCode = 13000
	ConfigInvalid      ErrorCode = 13001
	CompilerNotFound   ErrorCode = 13002
	DuplicateTestLabel ErrorCode = 13004

	// ========== Sandbox (13100-13199) ==========

	SandboxUnavailable  ErrorCode = 13100
	SandboxMountFailed  ErrorCode = 13101
	SandboxChrootFailed ErrorCode = 13102
	SandboxStateInvalid ErrorCode = 13103
	HandoffMissing      ErrorCode = 13104
	HandoffCorrupt      ErrorCode = 13105

	// ========== Execution internals (13200-13299) ==========

	SpawnFailed      ErrorCode = 13200
	FilterFailed     ErrorCode = 13201
	LinkFailed       ErrorCode = 13202
	WorkDirInvalid   ErrorCode = 13203
	HelperProtocol   ErrorCode = 13204
	SupportCmdFailed ErrorCode = 13205
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	InternalServerError: "Internal error",
	Canceled:            "Run canceled",

	// Validation
	ValidationFailed: "Validation failed",
	InvalidValue:     "Invalid value",

	// Specification
	SpecificationError: "Invalid test specification",
	ConfigInvalid:      "Invalid configuration",
	CompilerNotFound:   "No usable compiler found",
	DuplicateTestLabel: "Duplicate test label",

	// Sandbox
	SandboxUnavailable:  "Sandbox namespaces unavailable",
	SandboxMountFailed:  "Sandbox mount failed",
	SandboxChrootFailed: "Sandbox chroot failed",
	SandboxStateInvalid: "Invalid sandbox state transition",
	HandoffMissing:      "Sandbox handoff state missing",
	HandoffCorrupt:      "Sandbox handoff state corrupt",

	// Execution
	SpawnFailed:      "Process spawn failed",
	FilterFailed:     "Postprocess filter failed",
	LinkFailed:       "Program link failed",
	WorkDirInvalid:   "Invalid working directory",
	HelperProtocol:   "Limit helper protocol error",
	SupportCmdFailed: "Support command failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Int returns the integer value of the error code
func (c ErrorCode) Int() int {
	return int(c)
}
