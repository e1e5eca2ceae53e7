package oors

import (
	"errors"
	"fmt"
	"strings"
)

// Kernel errors
var (
	// Registration errors
	ErrModuleNil         = errors.New("module is nil")
	ErrModuleNameEmpty   = errors.New("module name is empty")
	ErrDuplicateModule   = errors.New("duplicate module name")
	ErrConfigValidation  = errors.New("config validation failed")
	ErrConfigNotPointer  = errors.New("config target must be a non-nil pointer to a struct")
	ErrSchemaInvalid     = errors.New("invalid config schema")
	ErrInitializeFailure = errors.New("module initialize failed")
	ErrInvalidHookName   = errors.New("invalid hook name")

	// Capability errors
	ErrUnknownModule     = errors.New("unknown module")
	ErrUnknownCapability = errors.New("unknown capability")
	ErrNotReady          = errors.New("module has not finished setup")

	// Dependency resolution errors
	ErrSelfDependency        = errors.New("module depends on itself")
	ErrCyclicDependency      = errors.New("cyclic dependency detected")
	ErrInvalidDependencyName = errors.New("invalid dependency name")
	ErrDependencyFailed      = errors.New("dependency failed to set up")
	ErrNotBootstrapping      = errors.New("dependencies can only be declared during setup")

	// Bootstrap errors
	ErrSetupFailure        = errors.New("module setup failed")
	ErrAlreadyBootstrapped = errors.New("manager already bootstrapped")

	// Workflow errors
	ErrHookFailed      = errors.New("hook failed")
	ErrHookResultType  = errors.New("hook returned unexpected result type")
	ErrHookContextType = errors.New("hook received unexpected context type")

	// Event errors
	ErrEventData = errors.New("event data is not representable as JSON")
)

// Violation is a single configuration constraint that was not satisfied.
type Violation struct {
	// Path is the JSON pointer of the offending value, "" for the root.
	Path    string
	Message string
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ConfigValidationError carries every violation found while validating a
// module configuration against its schema.
type ConfigValidationError struct {
	Module     string
	Violations []Violation
}

func (e *ConfigValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	if e.Module == "" {
		return fmt.Sprintf("%s: %s", ErrConfigValidation, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s for module %q: %s", ErrConfigValidation, e.Module, strings.Join(parts, "; "))
}

func (e *ConfigValidationError) Unwrap() error {
	return ErrConfigValidation
}

// CycleError is returned when a dependency edge closes a cycle. Path starts
// and ends with the same module name.
type CycleError struct {
	From string
	To   string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s from %q to %q: %s", ErrCyclicDependency, e.From, e.To, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// Phase names a step of a module lifecycle.
type Phase string

const (
	PhaseRegister   Phase = "register"
	PhaseInitialize Phase = "initialize"
	PhaseSetup      Phase = "setup"
)

// ModuleError reports which module failed and in which phase.
type ModuleError struct {
	Module string
	Phase  Phase
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %q failed during %s: %v", e.Module, e.Phase, e.Err)
}

// Unwrap exposes both the phase sentinel and the underlying cause.
func (e *ModuleError) Unwrap() []error {
	switch e.Phase {
	case PhaseSetup:
		return []error{ErrSetupFailure, e.Err}
	case PhaseInitialize:
		return []error{ErrInitializeFailure, e.Err}
	default:
		return []error{e.Err}
	}
}

// HookError reports a failing hook handler or default action.
type HookError struct {
	Module string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s: %q in module %q: %v", ErrHookFailed, e.Hook, e.Module, e.Err)
}

func (e *HookError) Unwrap() []error {
	return []error{ErrHookFailed, e.Err}
}
