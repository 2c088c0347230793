package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/api"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/config"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine/builders"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// errCallFailed makes the process exit non-zero after the envelope is printed.
var errCallFailed = errors.New("tool call failed")

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalogue as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := builders.NewDispatcher()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), api.ListToolsData{Tools: d.Catalogue().All()})
	},
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-args]",
	Short: "Run one tool call against the configured webhook and print the envelope",
	Example: `  bitrix-proxy call bitrix_deal_get '{"id": 42}'
  bitrix-proxy call bitrix_deal_list --dry-run`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().Bool("strict", false, "Check arguments against the tool's JSON Schema before dispatch")
	callCmd.Flags().Bool("dry-run", false, "Print the translated Bitrix24 request instead of sending it")
}

func runCall(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := cmd.OutOrStdout()

	tool := args[0]
	toolArgs := map[string]any{}
	if len(args) == 2 {
		var raw any
		if err := json.Unmarshal([]byte(args[1]), &raw); err != nil {
			return printEnvelope(out, nil, errmodel.WrapValidation("Arguments must be valid JSON", err))
		}
		toolArgs = engine.NormalizeArgs(raw)
	}

	if dryRun {
		return runDryRun(out, tool, toolArgs, strict)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := mustBuildLoggerTo(cfg.LogLevel, "stderr")
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if strict {
		if err := checkSchema(a.service.Catalogue(), tool, toolArgs); err != nil {
			return printEnvelope(out, nil, err)
		}
	}
	result, err := a.service.Call(ctx, tool, toolArgs, proxy.TransportCLI)
	return printEnvelope(out, result, err)
}

// runDryRun prints the translated request. It needs only the dispatcher, so
// no config is read and no backend is contacted.
func runDryRun(out io.Writer, tool string, args map[string]any, strict bool) error {
	d, err := builders.NewDispatcher()
	if err != nil {
		return err
	}
	if strict {
		if err := checkSchema(d.Catalogue(), tool, args); err != nil {
			return printEnvelope(out, nil, err)
		}
	}
	req, err := d.Dispatch(tool, args)
	if err != nil {
		return printEnvelope(out, nil, err)
	}
	return printEnvelope(out, map[string]any{"method": req.Method, "payload": req.Payload}, nil)
}

// checkSchema validates args against the tool's rendered JSON Schema.
// Unknown tools pass through so dispatch reports them.
func checkSchema(cat *registry.Catalogue, tool string, args map[string]any) error {
	if _, ok := cat.Get(tool); !ok {
		return nil
	}
	sch, err := cat.Schema(tool)
	if err != nil {
		return err
	}
	if err := registry.ValidateArgs(sch, args); err != nil {
		return errmodel.WrapValidation(fmt.Sprintf("Arguments for %s do not match its schema: %v", tool, err), err)
	}
	return nil
}

func printEnvelope(w io.Writer, data any, err error) error {
	if err == nil {
		return printJSON(w, api.OKResp{OK: true, Data: data})
	}
	e := errmodel.From(err)
	if perr := printJSON(w, api.ErrorResp{Message: e.Message, Code: e.Code, Details: e.Details}); perr != nil {
		return perr
	}
	return errCallFailed
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
