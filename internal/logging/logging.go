// Package logging sets up the structured root logger and its subsystems.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"

	"github.com/isometry/ldap-gate/internal/auth"
	"github.com/isometry/ldap-gate/internal/ldap"
)

// Name is the root logger name and the module prefix of every entry.
const Name = "ldap-gate"

// SubsystemHTTP is the log subsystem of the HTTP boundary.
const SubsystemHTTP = "http"

// Subsystems are registered on every context returned by NewContext.
var Subsystems = []string{
	ldap.SubsystemLDAP,
	ldap.SubsystemCache,
	auth.SubsystemAuth,
	SubsystemHTTP,
}

// Options configures the root logger.
type Options struct {
	Level  string    // TRACE, DEBUG, INFO, WARN, ERROR or OFF
	Output io.Writer // Defaults to stderr
}

// ParseLevel converts a level name to an hclog level.
func ParseLevel(level string) (hclog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return hclog.Info, nil
	}

	parsed := hclog.LevelFromString(level)
	if parsed == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return parsed, nil
}

// EnvVar returns the variable overriding the level of subsystem.
func EnvVar(subsystem string) string {
	return "LDAP_GATE_LOG_" + strings.ToUpper(subsystem)
}

// NewContext returns ctx carrying a JSON root logger and every subsystem.
// Each subsystem inherits the root level unless its EnvVar is set.
func NewContext(ctx context.Context, opts Options) (context.Context, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return ctx, err
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName(Name),
		tfsdklog.WithLevel(level),
		tfsdklog.WithOutput(output),
	)

	return WithSubsystems(ctx), nil
}

// WithSubsystems registers every subsystem on an existing root logger.
func WithSubsystems(ctx context.Context) context.Context {
	for _, subsystem := range Subsystems {
		ctx = tflog.NewSubsystem(ctx, subsystem, tflog.WithLevelFromEnv(EnvVar(subsystem)))
	}
	return ctx
}
