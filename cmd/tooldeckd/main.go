package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tooldeck/internal/app"
	"tooldeck/internal/domain"
)

var version = "dev"

type rootOptions struct {
	catalogPaths []string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := rootOptions{
		catalogPaths: []string{"catalog.yaml"},
	}

	root := &cobra.Command{
		Use:   "tooldeckd",
		Short: "Tool registry and execution engine, served over MCP",
	}

	root.PersistentFlags().StringSliceVar(&opts.catalogPaths, "catalog", opts.catalogPaths,
		"catalog file(s), merged in order; runtime settings come from the first")

	root.AddCommand(
		newServeCmd(logger, &opts),
		newValidateCmd(logger, &opts),
		newCallCmd(logger, &opts),
		newToolsCmd(logger, &opts),
		newHealthCmd(logger, &opts),
	)

	return root
}

func newServeCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and serve tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.Serve(ctx, app.ServeConfig{
				CatalogPaths: opts.catalogPaths,
				Version:      version,
			})
		},
	}
}

func newValidateCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the catalog files and report problems without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := app.ValidateConfig(cmd.Context(), opts.catalogPaths, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d tool(s)\n", len(doc.Tools))
			return nil
		},
	}
}

func newCallCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool from the catalog and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			var callArgs map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &callArgs); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}

			result, err := app.CallOnce(ctx, opts.catalogPaths, domain.CallRequest{
				Tool: cmdArgs[0],
				Args: callArgs,
			}, logger)
			if err != nil {
				return err
			}
			if result.Err != nil {
				if result.Err.Hint != "" {
					return fmt.Errorf("%s (hint: %s)", result.Err, result.Err.Hint)
				}
				return result.Err
			}

			encoded, err := json.MarshalIndent(result.Value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")
	return cmd
}

func newToolsCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools defined in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := app.ValidateConfig(cmd.Context(), opts.catalogPaths, logger)
			if err != nil {
				return err
			}
			for _, spec := range doc.Tools {
				line := fmt.Sprintf("%s\t%s", spec.Name, spec.Type)
				if spec.Description != "" {
					line += "\t" + spec.Description
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newHealthCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report tools the running daemon marks unavailable",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := addr
			if target == "" {
				doc, err := app.ValidateConfig(cmd.Context(), opts.catalogPaths, logger)
				if err != nil {
					return err
				}
				target = doc.Runtime.Observability.ListenAddress
			}
			if target == "" {
				target = "127.0.0.1:9090"
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				"http://"+target+"/healthz", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("query daemon health at %s: %w", target, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "",
		"observability address of the running daemon (defaults to the catalog's observability.listenAddress)")
	return cmd
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
