// ABOUTME: Alias oracle backed by nix eval and nix-instantiate subprocesses
// ABOUTME: Loads the nixpkgs alias set once and evaluates aliases on demand

package nixeval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
)

// DefaultTimeout bounds each subprocess.
const DefaultTimeout = 2 * time.Minute

// Output is the result of a finished process.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes a command. A non-zero exit is reported in Output, not as
// an error; errors mean the process could not be run.
type Runner func(ctx context.Context, name string, args ...string) (Output, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}

// Config configures an Oracle.
type Config struct {
	// NixBinary is the nix CLI. Empty means "nix".
	NixBinary string

	// InstantiateBinary is nix-instantiate. Empty means "nix-instantiate".
	InstantiateBinary string

	// Revision pins the nixpkgs flake to the host's revision when set.
	Revision string

	// Timeout bounds each subprocess. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Oracle implements audit.AliasOracle.
type Oracle struct {
	config Config
	run    Runner
	logger *slog.Logger

	once    sync.Once
	path    string
	aliases map[string]struct{}
	loadErr error
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithRunner replaces the process runner.
func WithRunner(run Runner) Option {
	return func(o *Oracle) {
		if run != nil {
			o.run = run
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Oracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOracle creates an Oracle.
func NewOracle(cfg Config, opts ...Option) *Oracle {
	if cfg.NixBinary == "" {
		cfg.NixBinary = "nix"
	}
	if cfg.InstantiateBinary == "" {
		cfg.InstantiateBinary = "nix-instantiate"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	o := &Oracle{
		config: cfg,
		run:    ExecRunner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ audit.AliasOracle = (*Oracle)(nil)

// NixpkgsPath returns the store path of the nixpkgs source in use.
func (o *Oracle) NixpkgsPath(ctx context.Context) (string, error) {
	if err := o.load(ctx); err != nil {
		return "", err
	}
	return o.path, nil
}

// IsKnownAlias reports whether attr is in the nixpkgs alias set.
func (o *Oracle) IsKnownAlias(ctx context.Context, attr string) (bool, error) {
	if err := o.load(ctx); err != nil {
		return false, err
	}
	_, ok := o.aliases[attr]
	return ok, nil
}

// Evaluate evaluates the alias attr. A non-zero exit is a failed
// evaluation whose message is the evaluator's stderr.
func (o *Oracle) Evaluate(ctx context.Context, attr string) (audit.Evaluation, error) {
	if err := o.load(ctx); err != nil {
		return audit.Evaluation{}, err
	}

	expr := fmt.Sprintf("%s.%s", aliasSetExpr(o.path), quoteAttr(attr))
	out, err := o.exec(ctx, o.config.InstantiateBinary, "--eval", "-E", expr)
	if err != nil {
		return audit.Evaluation{}, err
	}
	if out.ExitCode == 0 {
		return audit.Evaluation{}, nil
	}
	return audit.Evaluation{Failed: true, Message: string(out.Stderr)}, nil
}

// load resolves the nixpkgs path and alias names once.
func (o *Oracle) load(ctx context.Context) error {
	o.once.Do(func() {
		o.loadErr = o.loadAliases(ctx)
	})
	return o.loadErr
}

func (o *Oracle) loadAliases(ctx context.Context) error {
	ref := "nixpkgs#path"
	if o.config.Revision != "" {
		ref = "nixpkgs/" + o.config.Revision + "#path"
	}

	out, err := o.exec(ctx, o.config.NixBinary,
		"--extra-experimental-features", "nix-command flakes",
		"eval", "--raw", ref)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%w: nix eval %s: %s", audit.ErrAliasOracle, ref, strings.TrimSpace(string(out.Stderr)))
	}
	path := strings.TrimSpace(string(out.Stdout))
	if path == "" {
		return fmt.Errorf("%w: nix eval %s returned no path", audit.ErrAliasOracle, ref)
	}

	expr := fmt.Sprintf("builtins.attrNames %s", aliasSetExpr(path))
	out, err = o.exec(ctx, o.config.InstantiateBinary, "--eval", "-E", expr, "--json")
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%w: listing aliases: %s", audit.ErrAliasOracle, strings.TrimSpace(string(out.Stderr)))
	}

	names, err := parseAliasNames(out.Stdout)
	if err != nil {
		return err
	}

	o.path = path
	o.aliases = names
	o.logger.Debug("alias set loaded",
		slog.String("nixpkgs", path),
		slog.Int("aliases", len(names)),
	)
	return nil
}

func (o *Oracle) exec(ctx context.Context, name string, args ...string) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	out, err := o.run(ctx, name, args...)
	if err != nil {
		return Output{}, fmt.Errorf("%w: running %s: %v", audit.ErrAliasOracle, name, err)
	}
	return out, nil
}

func parseAliasNames(data []byte) (map[string]struct{}, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: alias list is not valid JSON", audit.ErrAliasOracle)
	}
	result := gjson.ParseBytes(data)
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: alias list is not an array", audit.ErrAliasOracle)
	}

	names := make(map[string]struct{})
	for _, item := range result.Array() {
		if item.Type == gjson.String {
			names[item.Str] = struct{}{}
		}
	}
	return names, nil
}

// aliasSetExpr is the attribute set of nixpkgs aliases rooted at path.
func aliasSetExpr(path string) string {
	return fmt.Sprintf(
		"(with import %[1]s {}; (self: super: lib.optionalAttrs config.allowAliases (import %[1]s/pkgs/top-level/aliases.nix lib self super)) {} {})",
		path,
	)
}

// quoteAttr quotes each attribute path segment that is not a plain identifier.
func quoteAttr(attr string) string {
	segments := strings.Split(attr, ".")
	for i, seg := range segments {
		if !isIdentifier(seg) {
			segments[i] = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`).Replace(seg) + `"`
		}
	}
	return strings.Join(segments, ".")
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || r == '\'' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
