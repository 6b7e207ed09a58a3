package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
)

// Document is one parsed catalog file: the tool list plus runtime settings.
type Document struct {
	Tools   []domain.ToolSpec
	Runtime domain.RuntimeConfig
}

// Loader reads catalog files (YAML or TOML, chosen by extension), expands
// ${ENV} references, applies runtime defaults and validates every tool spec.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("catalog")}
}

type rawDocument struct {
	Tools      []rawToolSpec `mapstructure:"tools"`
	rawRuntime `mapstructure:",squash"`
}

type rawRuntime struct {
	DefaultTimeoutSeconds int    `mapstructure:"defaultTimeoutSeconds"`
	WatchCatalog          bool   `mapstructure:"watchCatalog"`
	HealthStorePath       string `mapstructure:"healthStorePath"`
	Observability         struct {
		ListenAddress string `mapstructure:"listenAddress"`
		EnableMetrics bool   `mapstructure:"enableMetrics"`
	} `mapstructure:"observability"`
}

type rawToolSpec struct {
	Name           string              `mapstructure:"name"`
	Type           string              `mapstructure:"type"`
	Description    string              `mapstructure:"description"`
	Category       string              `mapstructure:"category"`
	Params         map[string]rawParam `mapstructure:"params"`
	Settings       map[string]any      `mapstructure:"settings"`
	Serial         bool                `mapstructure:"serial"`
	TimeoutSeconds int                 `mapstructure:"timeoutSeconds"`
}

type rawParam struct {
	Kind        string `mapstructure:"kind"`
	Description string `mapstructure:"description"`
	Required    bool   `mapstructure:"required"`
	Enum        []any  `mapstructure:"enum"`
}

func newCatalogViper(configType string) *viper.Viper {
	v := viper.New()
	v.SetConfigType(configType)
	v.SetDefault("defaultTimeoutSeconds", domain.DefaultCallTimeoutSeconds)
	v.SetDefault("watchCatalog", domain.DefaultWatchCatalog)
	v.SetDefault("healthStorePath", "")
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.enableMetrics", domain.DefaultEnableMetrics)
	return v
}

// Load reads and validates a single catalog file.
func (l *Loader) Load(ctx context.Context, path string) (Document, error) {
	if path == "" {
		return Document{}, errors.New("catalog path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read catalog: %w", err)
	}

	configType := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		configType = "toml"
	}

	expanded, missing, err := expandEnv(data, configType)
	if err != nil {
		return Document{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in catalog",
			zap.String("path", path), zap.Strings("missing", missing))
	}

	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	return l.parse(expanded, configType)
}

// LoadAll reads several catalog files and merges them into one document.
// Later files may redefine a tool of the same type; a cross-file collision
// with a different type is a configuration error. Runtime settings come from
// the first file; later files must not contradict them.
func (l *Loader) LoadAll(ctx context.Context, paths []string) (Document, error) {
	if len(paths) == 0 {
		return Document{}, errors.New("at least one catalog path is required")
	}

	merged := Document{}
	seen := make(map[string]string) // name -> type
	for i, path := range paths {
		doc, err := l.Load(ctx, path)
		if err != nil {
			return Document{}, fmt.Errorf("catalog %q: %w", path, err)
		}
		if i == 0 {
			merged.Runtime = doc.Runtime
		}
		for _, spec := range doc.Tools {
			if prior, ok := seen[spec.Name]; ok && prior != spec.Type {
				return Document{}, domain.E(domain.ErrDuplicateName, "catalog.load",
					fmt.Sprintf("tool %q defined with type %q and type %q across catalog files",
						spec.Name, prior, spec.Type), nil).
					WithHint("keep one definition per tool name, or align the types")
			}
			seen[spec.Name] = spec.Type
			merged.Tools = append(merged.Tools, spec)
		}
	}
	return merged, nil
}

func (l *Loader) parse(expanded []byte, configType string) (Document, error) {
	v := newCatalogViper(configType)
	if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
		return Document{}, fmt.Errorf("parse catalog: %w", err)
	}

	var raw rawDocument
	if err := v.Unmarshal(&raw); err != nil {
		return Document{}, fmt.Errorf("decode catalog: %w", err)
	}

	doc := Document{
		Runtime: domain.RuntimeConfig{
			DefaultTimeoutSeconds: raw.DefaultTimeoutSeconds,
			WatchCatalog:          raw.WatchCatalog,
			HealthStorePath:       raw.HealthStorePath,
			Observability: domain.ObservabilityConfig{
				ListenAddress: raw.Observability.ListenAddress,
				EnableMetrics: raw.Observability.EnableMetrics,
			},
		},
	}

	var problems []string
	nameSeen := make(map[string]string)
	for i, rawSpec := range raw.Tools {
		spec, errs := normalizeToolSpec(rawSpec, i)
		problems = append(problems, errs...)
		if len(errs) > 0 {
			continue
		}
		if prior, ok := nameSeen[spec.Name]; ok {
			if prior != spec.Type {
				problems = append(problems,
					fmt.Sprintf("tools[%d]: duplicate name %q with conflicting type", i, spec.Name))
				continue
			}
			// Same name and type: idempotent redefinition, last write wins.
			replaced := false
			for j := range doc.Tools {
				if doc.Tools[j].Name == spec.Name {
					doc.Tools[j] = spec
					replaced = true
					break
				}
			}
			if replaced {
				continue
			}
		}
		nameSeen[spec.Name] = spec.Type
		doc.Tools = append(doc.Tools, spec)
	}

	if len(problems) > 0 {
		return Document{}, errors.New(strings.Join(problems, "; "))
	}
	return doc, nil
}

func normalizeToolSpec(raw rawToolSpec, index int) (domain.ToolSpec, []string) {
	var errs []string
	if raw.Name == "" {
		errs = append(errs, fmt.Sprintf("tools[%d]: name is required", index))
	}
	if raw.Type == "" {
		errs = append(errs, fmt.Sprintf("tools[%d]: type is required", index))
	}
	if raw.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("tools[%d]: timeoutSeconds must be >= 0", index))
	}

	params := make(domain.ParameterSchema, len(raw.Params))
	for name, p := range raw.Params {
		kind := domain.ParamKind(p.Kind)
		if kind == "integer" {
			kind = domain.KindNumber
		}
		if !domain.KnownParamKind(kind) {
			errs = append(errs, fmt.Sprintf("tools[%d]: param %q has unknown kind %q", index, name, p.Kind))
			continue
		}
		params[name] = domain.ParameterSpec{
			Kind:        kind,
			Description: p.Description,
			Required:    p.Required,
			Enum:        p.Enum,
		}
	}

	if len(errs) > 0 {
		return domain.ToolSpec{}, errs
	}
	return domain.ToolSpec{
		Name:           raw.Name,
		Type:           raw.Type,
		Description:    raw.Description,
		Category:       raw.Category,
		Params:         params,
		Settings:       raw.Settings,
		Serial:         raw.Serial,
		TimeoutSeconds: raw.TimeoutSeconds,
	}, nil
}
