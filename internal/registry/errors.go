package registry

import (
	"errors"
	"fmt"
)

// ModuleNotFoundError is returned when no module matches a type and version.
type ModuleNotFoundError struct {
	DocumentType string
	Version      int // 0 means "latest"
}

// Error implements the error interface.
func (e *ModuleNotFoundError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("no module registered for document type %q", e.DocumentType)
	}
	return fmt.Sprintf("no module registered for document type %q version %d", e.DocumentType, e.Version)
}

// ReducerNotFoundError is returned when a job targets an unregistered
// document type. Fatal for the job.
type ReducerNotFoundError struct {
	DocumentType string
	Version      int
}

// Error implements the error interface.
func (e *ReducerNotFoundError) Error() string {
	return fmt.Sprintf("no reducer for document type %q version %d", e.DocumentType, e.Version)
}

// DuplicateModuleError is returned when registering a (type, version) twice.
type DuplicateModuleError struct {
	DocumentType string
	Version      int
}

// Error implements the error interface.
func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %s@%d is already registered", e.DocumentType, e.Version)
}

// UpgradeManifestNotFoundError is returned when a type has no transitions.
type UpgradeManifestNotFoundError struct {
	DocumentType string
}

// Error implements the error interface.
func (e *UpgradeManifestNotFoundError) Error() string {
	return fmt.Sprintf("no upgrade manifest for document type %q", e.DocumentType)
}

// DowngradeNotSupportedError is returned when to < from.
type DowngradeNotSupportedError struct {
	DocumentType string
	From, To     int
}

// Error implements the error interface.
func (e *DowngradeNotSupportedError) Error() string {
	return fmt.Sprintf("downgrade of %q from version %d to %d is not supported", e.DocumentType, e.From, e.To)
}

// MissingUpgradeTransitionError is returned when a single step of an upgrade
// path is absent from the manifest.
type MissingUpgradeTransitionError struct {
	DocumentType string
	From, To     int
}

// Error implements the error interface.
func (e *MissingUpgradeTransitionError) Error() string {
	return fmt.Sprintf("missing upgrade transition for %q from version %d to %d", e.DocumentType, e.From, e.To)
}

// InvalidUpgradeStepError is returned by GetUpgradeReducer for anything but a
// single-step transition.
type InvalidUpgradeStepError struct {
	DocumentType string
	From, To     int
}

// Error implements the error interface.
func (e *InvalidUpgradeStepError) Error() string {
	return fmt.Sprintf("upgrade of %q from version %d to %d is not a single step", e.DocumentType, e.From, e.To)
}

// IsNotFound reports whether err is a ModuleNotFoundError or ReducerNotFoundError.
func IsNotFound(err error) bool {
	var mnf *ModuleNotFoundError
	var rnf *ReducerNotFoundError
	return errors.As(err, &mnf) || errors.As(err, &rnf)
}

// IsUpgradeError reports whether err belongs to the upgrade error family.
func IsUpgradeError(err error) bool {
	var (
		down    *DowngradeNotSupportedError
		missing *MissingUpgradeTransitionError
		step    *InvalidUpgradeStepError
		noMan   *UpgradeManifestNotFoundError
	)
	return errors.As(err, &down) || errors.As(err, &missing) ||
		errors.As(err, &step) || errors.As(err, &noMan)
}
