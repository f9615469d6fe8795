package services

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/vlazic/mcphub/internal/models"
)

type ValidatorService struct{}

func NewValidatorService() *ValidatorService {
	return &ValidatorService{}
}

// ValidateDescriptor checks required fields and the runtime value.
func (v *ValidatorService) ValidateDescriptor(d *models.ServerDescriptor) error {
	if d == nil {
		return fmt.Errorf("%w: descriptor is empty", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDescriptor)
	}
	if slug := d.Slug(); slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		return fmt.Errorf("%w: name %q cannot be used as a directory name", ErrInvalidDescriptor, d.Name)
	}
	if d.Runtime == "" {
		return fmt.Errorf("%w: runtime cannot be empty", ErrInvalidDescriptor)
	}
	if !d.Runtime.Valid() {
		return fmt.Errorf("%w: runtime must be %q or %q, got %q",
			ErrInvalidDescriptor, models.RuntimeNode, models.RuntimePython, d.Runtime)
	}
	if strings.TrimSpace(d.PackageReference) == "" {
		return fmt.Errorf("%w: package_reference cannot be empty", ErrInvalidDescriptor)
	}
	if d.CommandArgs == nil {
		return fmt.Errorf("%w: command_args is required", ErrInvalidDescriptor)
	}
	if err := validatePort(d.DefaultNetwork.Port); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := validateEnvironmentVariables(d.DefaultNetwork.Env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return nil
}

// ValidateUpdate checks the fields a reconfigure request may carry.
func (v *ValidatorService) ValidateUpdate(u *models.ServerUpdate) error {
	if u.Port != nil {
		if err := validatePort(*u.Port); err != nil {
			return err
		}
	}
	return validateEnvironmentVariables(u.Env)
}

// IsCommandAvailable checks if a command is available in PATH
func (v *ValidatorService) IsCommandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// ValidateClientConfig validates a full client config document before it replaces the file.
func (v *ValidatorService) ValidateClientConfig(doc map[string]interface{}) error {
	raw, exists := doc[mcpServersKey]
	if !exists || raw == nil {
		return nil
	}

	servers, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", mcpServersKey)
	}

	for name, serverInterface := range servers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("server name cannot be empty")
		}
		serverMap, ok := serverInterface.(map[string]interface{})
		if !ok {
			return fmt.Errorf("server '%s' must be an object", name)
		}
		if err := detectTransport(serverMap); err != nil {
			return fmt.Errorf("server '%s': %w", name, err)
		}
	}

	return nil
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

func validateEnvironmentVariables(env map[string]string) error {
	for key := range env {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("environment variable key cannot be empty")
		}
		if strings.Contains(key, "=") {
			return fmt.Errorf("environment variable key cannot contain '='")
		}
	}
	return nil
}

// detectTransport requires exactly one of command, url or httpUrl.
func detectTransport(serverConfig map[string]interface{}) error {
	count := 0
	for _, key := range []string{"command", "url", "httpUrl"} {
		value, exists := serverConfig[key]
		if !exists || value == nil {
			continue
		}
		str, ok := value.(string)
		if !ok || strings.TrimSpace(str) == "" {
			return fmt.Errorf("%s must be a non-empty string", key)
		}
		if key != "command" {
			if err := validateURL(str); err != nil {
				return fmt.Errorf("invalid URL '%s': %w", str, err)
			}
		}
		count++
	}

	if count == 0 {
		return fmt.Errorf("server must have exactly one transport type: command, url, or httpUrl")
	}
	if count > 1 {
		return fmt.Errorf("server must have exactly one transport type, found %d", count)
	}
	return nil
}

func validateURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL missing host")
	}
	return nil
}
