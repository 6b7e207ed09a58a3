// Package builtin registers the factories shipped with the engine. Domain
// tool packs register the same way during startup; nothing here is special
// beyond being compiled in.
package builtin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/typereg"
)

const browserBinEnv = "TOOLDECK_BROWSER_BIN"

// Register installs all builtin types. Called once during startup; the
// browser type stays lazy because its resolver probes the local machine for
// an optional capability.
func Register(reg *typereg.Registry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg.RegisterEager("echo", newEcho)
	reg.RegisterEager("time", newClock)
	reg.RegisterEager("http_request", newHTTPRequest)
	reg.RegisterLazy("browser", resolveBrowser(logger))
}

type echoInstance struct {
	prefix string
}

func newEcho(spec domain.ToolSpec) (domain.ToolInstance, error) {
	prefix, _ := spec.Settings["prefix"].(string)
	return &echoInstance{prefix: prefix}, nil
}

func (e *echoInstance) Execute(_ context.Context, args map[string]any) (any, error) {
	text, _ := args["text"].(string)
	if e.prefix != "" {
		return e.prefix + text, nil
	}
	return text, nil
}

type clockInstance struct {
	layout string
}

func newClock(spec domain.ToolSpec) (domain.ToolInstance, error) {
	layout, _ := spec.Settings["layout"].(string)
	if layout == "" {
		layout = time.RFC3339
	}
	if formatted := time.Now().Format(layout); formatted == layout {
		// A layout with no reference elements formats to itself.
		return nil, fmt.Errorf("layout %q contains no time elements", layout)
	}
	return &clockInstance{layout: layout}, nil
}

func (c *clockInstance) Execute(_ context.Context, args map[string]any) (any, error) {
	zone, _ := args["timezone"].(string)
	now := time.Now()
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, domain.Permanent("time.execute", fmt.Errorf("unknown timezone %q", zone))
		}
		now = now.In(loc)
	}
	return now.Format(c.layout), nil
}

// resolveBrowser is the lazy-resolution example: the factory only exists on
// machines that have a browser binary. Everywhere else, every catalog entry
// of this type yields a dependency error with a fix-it hint, while the rest
// of the engine keeps working.
func resolveBrowser(logger *zap.Logger) domain.Resolver {
	return func() (domain.Factory, error) {
		bin := os.Getenv(browserBinEnv)
		if bin == "" {
			for _, candidate := range []string{"chromium", "chromium-browser", "google-chrome"} {
				if found, err := exec.LookPath(candidate); err == nil {
					bin = found
					break
				}
			}
		}
		if bin == "" {
			return nil, domain.E(domain.ErrDependency, "builtin.browser",
				"no browser binary found on this machine", nil).
				WithHint("install chromium or set " + browserBinEnv)
		}
		logger.Info("browser capability resolved", zap.String("bin", bin))
		return newBrowser(bin), nil
	}
}

type browserInstance struct {
	bin string
}

func newBrowser(bin string) domain.Factory {
	return func(spec domain.ToolSpec) (domain.ToolInstance, error) {
		return &browserInstance{bin: bin}, nil
	}
}

// SerialExecute: a headless browser session cannot interleave commands.
func (b *browserInstance) SerialExecute() bool { return true }

func (b *browserInstance) Execute(ctx context.Context, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, domain.Permanent("browser.execute", fmt.Errorf("url argument is required"))
	}
	out, err := exec.CommandContext(ctx, b.bin, "--headless", "--dump-dom", url).Output()
	if err != nil {
		return nil, domain.ClassifyExecution("browser.execute", err)
	}
	return string(out), nil
}
