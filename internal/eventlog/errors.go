// Package eventlog implements the engine's structured event emission and
// typed error model. Errors carry a stable Tag a caller can switch on, a safe
// message with no secrets, and an optional raw message/env var capture
// gated behind the caller's own secret-handling policy.
package eventlog

import (
	"errors"
	"fmt"
)

// Tag is the stable discriminator upstream remediation logic switches
// on. Values are part of the wire contract with embedders; never rename
// one.
type Tag string

const (
	TagCannotGetCluster                   Tag = "CannotGetCluster"
	TagCannotCopyFilesBetweenDirectories   Tag = "CannotCopyFilesBetweenDirectories"
	TagTerraformError                     Tag = "TerraformError"
	TagHelmError                          Tag = "HelmError"
	TagHelmChartError                     Tag = "HelmChartError"
	TagKubernetesNodeNotReady              Tag = "KubernetesNodeNotReady"
	TagObjectStorageError                 Tag = "ObjectStorageError"
	TagCannotRestartService               Tag = "CannotRestartService"
	TagUnsupportedInstanceType            Tag = "UnsupportedInstanceType"
	TagUnsupportedClusterKind             Tag = "UnsupportedClusterKind"
	TagUnsupportedRegion                  Tag = "UnsupportedRegion"
	TagCannotRetrieveClusterConfigFile    Tag = "CannotRetrieveClusterConfigFile"
	TagAwsSdkCannotGetClient              Tag = "AwsSdkCannotGetClient"
	TagMultipleClustersFoundExpectedOne   Tag = "MultipleClustersFoundExpectedOne"
	TagBuildError                         Tag = "BuildError"
	TagRegistryError                      Tag = "RegistryError"
	TagCancelled                          Tag = "Cancelled"
	TagTimeout                            Tag = "Timeout"
)

// Stage is the outermost handler's context, attached exactly once at
// the action-engine boundary. Lower layers never set Stage themselves.
type Stage string

const (
	StageInfrastructureCreate            Stage = "Infrastructure::Create"
	StageInfrastructurePause             Stage = "Infrastructure::Pause"
	StageInfrastructureDelete            Stage = "Infrastructure::Delete"
	StageInfrastructureUpgrade           Stage = "Infrastructure::Upgrade"
	StageInfrastructureLoadConfiguration Stage = "Infrastructure::LoadConfiguration"
	StageEnvironmentDeploy               Stage = "Environment::Deploy"
	StageEnvironmentPause                Stage = "Environment::Pause"
	StageEnvironmentDelete               Stage = "Environment::Delete"
	StageEnvironmentRestart              Stage = "Environment::Restart"
)

// Error is the engine's typed result error; the embedding process maps
// it to an exit code.
type Error struct {
	Tag Tag
	// Subkind refines Tag for the composite kinds (TerraformError,
	// HelmError, HelmChartError, ObjectStorageError, BuildError,
	// RegistryError) — e.g. "S3BucketAlreadyOwnedByYou", "OverSize".
	Subkind string
	Stage   Stage
	Cause   error
	// MessageSafe never contains secrets; safe to show to end users and to
	// log at any verbosity.
	MessageSafe string
	// MessageRaw may contain secrets (tokens, connection strings pulled
	// from a tool's stderr) and must only be surfaced to operators who
	// have been granted that access.
	MessageRaw string
	// EnvVars captures the process environment at the point of failure,
	// for debugging. Never logged automatically.
	EnvVars map[string]string
}

func (e *Error) Error() string {
	if e.Subkind != "" {
		return fmt.Sprintf("%s{%s}: %s", e.Tag, e.Subkind, e.MessageSafe)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.MessageSafe)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithStage returns a copy of e with Stage set. It is a
// no-op if Stage is already set, so an inner call that already passed
// through one outermost handler keeps its original stage.
func (e *Error) WithStage(stage Stage) *Error {
	if e.Stage != "" {
		return e
	}
	cp := *e
	cp.Stage = stage
	return &cp
}

// New constructs an Error. cause may be nil.
func New(tag Tag, messageSafe string, cause error) *Error {
	return &Error{Tag: tag, MessageSafe: messageSafe, Cause: cause}
}

// Newf is New with a formatted safe message.
func Newf(tag Tag, cause error, format string, args ...any) *Error {
	return &Error{Tag: tag, MessageSafe: fmt.Sprintf(format, args...), Cause: cause}
}

// WithSubkind sets Subkind and returns e for chaining.
func (e *Error) WithSubkind(subkind string) *Error {
	e.Subkind = subkind
	return e
}

// WithRaw sets MessageRaw and returns e for chaining.
func (e *Error) WithRaw(raw string) *Error {
	e.MessageRaw = raw
	return e
}

// WithEnvVars sets EnvVars and returns e for chaining.
func (e *Error) WithEnvVars(env map[string]string) *Error {
	e.EnvVars = env
	return e
}

// HasTag reports whether err is (or wraps) an *Error with the given tag.
func HasTag(err error, tag Tag) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Tag == tag
	}
	return false
}

// HasSubkind reports whether err is (or wraps) an *Error with the given
// tag and subkind, the shape the infrastructure action engine's
// remediation table switches on.
func HasSubkind(err error, tag Tag, subkind string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Tag == tag && e.Subkind == subkind
	}
	return false
}

// TagOf extracts the Tag from err, or "" if err is not a *Error.
func TagOf(err error) Tag {
	var e *Error
	if errors.As(err, &e) {
		return e.Tag
	}
	return ""
}
