package domain

import (
	"context"
	"time"
)

// ParamKind is the primitive kind a tool parameter accepts.
type ParamKind string

const (
	KindString  ParamKind = "string"
	KindNumber  ParamKind = "number"
	KindBoolean ParamKind = "boolean"
	KindObject  ParamKind = "object"
	KindArray   ParamKind = "array"
)

// KnownParamKind reports whether kind is one of the supported primitive kinds.
func KnownParamKind(kind ParamKind) bool {
	switch kind {
	case KindString, KindNumber, KindBoolean, KindObject, KindArray:
		return true
	default:
		return false
	}
}

// ParameterSpec describes one named tool parameter.
type ParameterSpec struct {
	Kind        ParamKind `json:"kind" yaml:"kind" toml:"kind"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Enum        []any     `json:"enum,omitempty" yaml:"enum,omitempty" toml:"enum,omitempty"`
}

// ParameterSchema maps parameter name to its spec.
type ParameterSchema map[string]ParameterSpec

// ToolSpec is the static description of one tool in the catalog.
type ToolSpec struct {
	Name        string          `json:"name" yaml:"name" toml:"name"`
	Type        string          `json:"type" yaml:"type" toml:"type"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Category    string          `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	Params      ParameterSchema `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Settings    map[string]any  `json:"settings,omitempty" yaml:"settings,omitempty" toml:"settings,omitempty"`

	// Serial marks tools whose instances are not safe for concurrent
	// Execute calls; the engine serializes calls to them.
	Serial bool `json:"serial,omitempty" yaml:"serial,omitempty" toml:"serial,omitempty"`

	// TimeoutSeconds overrides the engine's default per-call deadline.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty" toml:"timeoutSeconds,omitempty"`
}

// ToolInstance is the live, constructed tool. Instances are owned by the
// instance cache and assumed safe for concurrent Execute calls unless the
// spec (or the instance, via SerialExecutor) says otherwise.
type ToolInstance interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// SerialExecutor lets an instance declare at runtime that its Execute
// calls must be serialized, independent of the spec's Serial flag.
type SerialExecutor interface {
	SerialExecute() bool
}

// Factory builds a tool instance from its spec.
type Factory func(spec ToolSpec) (ToolInstance, error)

// Resolver produces a factory on first use. Its failure is an expected
// condition (missing optional capability), not a bug.
type Resolver func() (Factory, error)

// LoadMode controls how catalog sources combine.
type LoadMode string

const (
	LoadMerge   LoadMode = "merge"
	LoadReplace LoadMode = "replace"
)

// CallRequest names one tool and supplies its arguments.
type CallRequest struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// CallResult is either a success payload or a structured error.
type CallResult struct {
	ID       string        `json:"id,omitempty"`
	Tool     string        `json:"tool"`
	Value    any           `json:"value,omitempty"`
	Err      *Error        `json:"error,omitempty"`
	Duration time.Duration `json:"durationNs,omitempty"`
}

// OK reports whether the call succeeded.
func (r CallResult) OK() bool { return r.Err == nil }

// HealthRecord tracks per-tool availability independent of catalog
// membership. ErrorCount is cumulative; recovery preserves it.
type HealthRecord struct {
	Available   bool       `json:"available"`
	LastError   string     `json:"lastError,omitempty"`
	LastErrKind ErrKind    `json:"lastErrorKind,omitempty"`
	LastErrorAt *time.Time `json:"lastErrorAt,omitempty"`
	ErrorCount  int        `json:"errorCount"`
	RecoveredAt *time.Time `json:"recoveredAt,omitempty"`
}

// RuntimeConfig is the catalog file's top-level runtime settings, decoded
// alongside the tool list.
type RuntimeConfig struct {
	DefaultTimeoutSeconds int                 `json:"defaultTimeoutSeconds" mapstructure:"defaultTimeoutSeconds"`
	WatchCatalog          bool                `json:"watchCatalog" mapstructure:"watchCatalog"`
	HealthStorePath       string              `json:"healthStorePath" mapstructure:"healthStorePath"`
	Observability         ObservabilityConfig `json:"observability" mapstructure:"observability"`
}

type ObservabilityConfig struct {
	ListenAddress string `json:"listenAddress" mapstructure:"listenAddress"`
	EnableMetrics bool   `json:"enableMetrics" mapstructure:"enableMetrics"`
}

const (
	DefaultCallTimeoutSeconds         = 60
	DefaultObservabilityListenAddress = ""
	DefaultEnableMetrics              = true
	DefaultWatchCatalog               = false
)

// CallTimeout returns the effective deadline for a tool call.
func CallTimeout(runtime RuntimeConfig, spec ToolSpec) time.Duration {
	seconds := spec.TimeoutSeconds
	if seconds <= 0 {
		seconds = runtime.DefaultTimeoutSeconds
	}
	if seconds <= 0 {
		seconds = DefaultCallTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// SerializeExecution reports whether calls to the instance must not overlap.
func SerializeExecution(spec ToolSpec, instance ToolInstance) bool {
	if spec.Serial {
		return true
	}
	if s, ok := instance.(SerialExecutor); ok {
		return s.SerialExecute()
	}
	return false
}
