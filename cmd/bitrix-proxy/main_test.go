package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/config"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine/builders"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
)

func TestCheckSchema(t *testing.T) {
	d, err := builders.NewDispatcher()
	require.NoError(t, err)
	cat := d.Catalogue()

	require.NoError(t, checkSchema(cat, "bitrix_deal_get", map[string]any{"id": 5.0}))
	require.NoError(t, checkSchema(cat, "no_such_tool", nil), "unknown tools are left to dispatch")

	err = checkSchema(cat, "bitrix_deal_get", map[string]any{"id": "5"})
	require.Error(t, err)
	assert.True(t, errmodel.IsKind(err, errmodel.KindValidation))

	err = checkSchema(cat, "bitrix_deal_get", map[string]any{})
	require.Error(t, err)

	require.NoError(t, checkSchema(cat, "bitrix_timeline_comment_add",
		map[string]any{"entityType": "DEAL", "entityId": 5.0, "comment": "hi"}))
}

func TestPrintEnvelope(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEnvelope(&buf, map[string]any{"ID": "1"}, nil))
	assert.JSONEq(t, `{"ok":true,"data":{"ID":"1"}}`, buf.String())

	buf.Reset()
	err := printEnvelope(&buf, nil, errmodel.Validation("Unknown tool: x"))
	assert.ErrorIs(t, err, errCallFailed)
	assert.JSONEq(t, `{"ok":false,"message":"Unknown tool: x","code":"VALIDATION_ERROR","details":null}`, buf.String())
}

func TestToolsCommand(t *testing.T) {
	var buf bytes.Buffer
	toolsCmd.SetOut(&buf)
	t.Cleanup(func() { toolsCmd.SetOut(nil) })
	require.NoError(t, toolsCmd.RunE(toolsCmd, nil))

	var out struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.NotEmpty(t, out.Tools)
	assert.Equal(t, "bitrix_deal_list", out.Tools[0].Name)
}

func TestCallCommand_DryRunSkipsConfigAndBackends(t *testing.T) {
	// An unreadable config file fails config.Load, so success proves it is not read.
	t.Setenv(config.FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")

	var buf bytes.Buffer
	callCmd.SetOut(&buf)
	require.NoError(t, callCmd.Flags().Set("dry-run", "true"))
	t.Cleanup(func() {
		callCmd.SetOut(nil)
		_ = callCmd.Flags().Set("dry-run", "false")
	})

	require.NoError(t, runCall(callCmd, []string{"bitrix_deal_get", `{"id": 42}`}))
	assert.JSONEq(t, `{"ok":true,"data":{"method":"crm.deal.get","payload":{"id":42}}}`, buf.String())

	buf.Reset()
	err := runCall(callCmd, []string{"bitrix_deal_get", `{"id": "x"}`})
	assert.ErrorIs(t, err, errCallFailed)
	assert.Contains(t, buf.String(), `"code": "VALIDATION_ERROR"`)
}

func TestRunDryRun_StrictAcceptsMixedCaseEnum(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runDryRun(&buf, "bitrix_timeline_comment_add",
		map[string]any{"entityType": "DEAL", "entityId": 5.0, "comment": "hi"}, true))

	var env struct {
		OK   bool `json:"ok"`
		Data struct {
			Method string `json:"method"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.True(t, env.OK)
	assert.Equal(t, "crm.timeline.comment.add", env.Data.Method)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "bitrix-proxy version dev\n", buf.String())
}
