package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDescriptor   = errors.New("invalid server descriptor")
	ErrInvalidUpdate       = errors.New("invalid server update")
	ErrInvalidClientConfig = errors.New("invalid client config")
	ErrAlreadyInstalled    = errors.New("server already installed")
	ErrNotFound            = errors.New("server not found")
	ErrInstallationFailed  = errors.New("installation failed")
	ErrEntryPointNotFound  = errors.New("entry point not found")
	ErrOperationInProgress = errors.New("another operation is in progress for this server")
	ErrStateCorrupt        = errors.New("local state file is corrupt")
	ErrConfigWriteFailed   = errors.New("failed to write client config")
)

// Install steps reported in InstallError.
const (
	StepCreateDirectory     = "create_directory"
	StepFetchRepository     = "fetch_repository"
	StepInstallPackage      = "install_package"
	StepInstallDependencies = "install_dependencies"
)

// InstallError reports which install step failed for which server.
type InstallError struct {
	Server string
	Step   string
	Err    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("installing '%s' failed at %s: %v", e.Server, e.Step, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

func (e *InstallError) Is(target error) bool {
	return target == ErrInstallationFailed
}

// ConfigWriteError wraps a failure to persist the client config file.
type ConfigWriteError struct {
	Path string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("failed to write client config '%s': %v", e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error {
	return e.Err
}

func (e *ConfigWriteError) Is(target error) bool {
	return target == ErrConfigWriteFailed
}

func notFound(name string) error {
	return fmt.Errorf("%w: '%s'", ErrNotFound, name)
}
