// ABOUTME: Host release provider backed by nixos-version or a static override
// ABOUTME: Supplies the channel hint and nixpkgs revision of the running system

package hostversion

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrUnknownRelease is returned when the host release cannot be determined.
var ErrUnknownRelease = errors.New("host release unknown")

// releasePattern matches the leading two-part release, e.g. "25.11".
var releasePattern = regexp.MustCompile(`^\d+\.\d+`)

// Info describes the running system.
type Info struct {
	// NixOSVersion is the full version, e.g. "25.11.20251020.abcdef0".
	NixOSVersion string

	// NixpkgsRevision is the nixpkgs commit the system was built from.
	NixpkgsRevision string
}

// Provider answers questions about the host system.
type Provider interface {
	// Release returns the two-part release, e.g. "25.11".
	Release(ctx context.Context) (string, error)

	// Info returns the full version and nixpkgs revision.
	Info(ctx context.Context) (*Info, error)
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Command queries the nixos-version binary.
type Command struct {
	binary  string
	timeout time.Duration
	run     Runner
}

// NewCommand creates a Command provider. An empty binary means "nixos-version";
// a nil runner means ExecRunner.
func NewCommand(binary string, run Runner) *Command {
	if binary == "" {
		binary = "nixos-version"
	}
	if run == nil {
		run = ExecRunner
	}
	return &Command{
		binary:  binary,
		timeout: 10 * time.Second,
		run:     run,
	}
}

// Release implements Provider.
func (c *Command) Release(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, c.binary)
	if err != nil {
		return "", fmt.Errorf("running %s: %w", c.binary, err)
	}
	return ParseRelease(string(out))
}

// Info implements Provider.
func (c *Command) Info(ctx context.Context) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, c.binary, "--json")
	if err != nil {
		return nil, fmt.Errorf("running %s --json: %w", c.binary, err)
	}
	return ParseInfo(out)
}

// ParseRelease extracts the two-part release from nixos-version output.
func ParseRelease(output string) (string, error) {
	release := releasePattern.FindString(strings.TrimSpace(output))
	if release == "" {
		return "", fmt.Errorf("%w: unexpected output %q", ErrUnknownRelease, strings.TrimSpace(output))
	}
	return release, nil
}

// ParseInfo decodes `nixos-version --json` output.
func ParseInfo(data []byte) (*Info, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON from nixos-version", ErrUnknownRelease)
	}

	version := gjson.GetBytes(data, "nixosVersion")
	if !version.Exists() || version.String() == "" {
		return nil, fmt.Errorf("%w: no nixosVersion", ErrUnknownRelease)
	}

	return &Info{
		NixOSVersion:    version.String(),
		NixpkgsRevision: gjson.GetBytes(data, "nixpkgsRevision").String(),
	}, nil
}

// Static reports fixed values, for configured channel overrides.
type Static struct {
	info Info
}

// NewStatic creates a Static provider for the given version.
func NewStatic(nixosVersion, nixpkgsRevision string) *Static {
	return &Static{info: Info{NixOSVersion: nixosVersion, NixpkgsRevision: nixpkgsRevision}}
}

// Release implements Provider.
func (s *Static) Release(context.Context) (string, error) {
	return ParseRelease(s.info.NixOSVersion)
}

// Info implements Provider.
func (s *Static) Info(context.Context) (*Info, error) {
	info := s.info
	return &info, nil
}
