package builders

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) *engine.Dispatcher {
	t.Helper()
	d, err := NewDispatcher()
	require.NoError(t, err)
	return d
}

// requestJSON dispatches and returns the request rendered as JSON so that
// int and float64 zeros compare equal.
func requestJSON(t *testing.T, d *engine.Dispatcher, tool string, args map[string]any) string {
	t.Helper()
	req, err := d.Dispatch(tool, args)
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return string(b)
}

func requireValidation(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	var e *errmodel.Error
	require.True(t, errors.As(err, &e), "want *errmodel.Error, got %T", err)
	assert.Equal(t, errmodel.KindValidation, e.Kind)
	assert.Equal(t, errmodel.CodeValidation, e.Code)
	if message != "" {
		assert.Equal(t, message, e.Message)
	}
}

func TestDefault_UniqueNames(t *testing.T) {
	d := newTestDispatcher(t)
	seen := map[string]bool{}
	for _, def := range d.Catalogue().All() {
		assert.False(t, seen[def.Name], "duplicate %s", def.Name)
		seen[def.Name] = true
	}
	assert.Greater(t, len(seen), 80)
}

func TestDefault_EveryListedToolIsClaimed(t *testing.T) {
	for _, b := range Default() {
		for _, def := range b.Tools() {
			_, ok, _ := b.TryBuild(def.Name, map[string]any{})
			assert.True(t, ok, "%s does not claim %s", b.Name(), def.Name)
		}
		_, ok, err := b.TryBuild("bitrix_nope", map[string]any{})
		assert.False(t, ok)
		assert.NoError(t, err)
	}
}

func TestDefault_SchemasCompile(t *testing.T) {
	d := newTestDispatcher(t)
	require.NoError(t, d.Catalogue().CompileAll())
}

func TestDefault_CatalogueOrderFollowsBuilders(t *testing.T) {
	d := newTestDispatcher(t)
	all := d.Catalogue().All()
	require.NotEmpty(t, all)
	assert.Equal(t, "bitrix_deal_list", all[0].Name)
	assert.Equal(t, "bitrix_crm_summary", all[len(all)-1].Name)
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch("bitrix_teleport", nil)
	requireValidation(t, err, "Unknown tool: bitrix_teleport")
	assert.ErrorIs(t, err, engine.ErrUnknownTool)
}

func TestDeal_Get(t *testing.T) {
	d := newTestDispatcher(t)
	got := requestJSON(t, d, "bitrix_deal_get", map[string]any{"id": 123.0})
	assert.JSONEq(t, `{"method":"crm.deal.get","payload":{"id":123}}`, got)
}

func TestDeal_InvalidIDs(t *testing.T) {
	d := newTestDispatcher(t)
	for name, v := range map[string]any{
		"zero":     0.0,
		"negative": -1.0,
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
		"string":   "123",
		"missing":  nil,
		"bool":     true,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.Dispatch("bitrix_deal_get", map[string]any{"id": v})
			requireValidation(t, err, `Parameter "id" must be a positive number`)
		})
	}
}

func TestDeal_AddTitleWins(t *testing.T) {
	d := newTestDispatcher(t)
	got := requestJSON(t, d, "bitrix_deal_add", map[string]any{
		"title":  "X",
		"fields": map[string]any{"TITLE": "ignored", "OPPORTUNITY": 100.0},
	})
	assert.JSONEq(t, `{"method":"crm.deal.add","payload":{"fields":{"TITLE":"X","OPPORTUNITY":100}}}`, got)
}

func TestDeal_AddTitleFromFields(t *testing.T) {
	d := newTestDispatcher(t)
	got := requestJSON(t, d, "bitrix_deal_add", map[string]any{
		"fields": map[string]any{"TITLE": "From bag"},
	})
	assert.JSONEq(t, `{"method":"crm.deal.add","payload":{"fields":{"TITLE":"From bag"}}}`, got)

	_, err := d.Dispatch("bitrix_deal_add", map[string]any{"fields": map[string]any{"OPPORTUNITY": 1.0}})
	requireValidation(t, err, `Parameter "title" or fields.TITLE is required`)
}

func TestDeal_AddDoesNotMutateInput(t *testing.T) {
	d := newTestDispatcher(t)
	bag := map[string]any{"TITLE": "old"}
	_, err := d.Dispatch("bitrix_deal_add", map[string]any{"title": "new", "fields": bag})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"TITLE": "old"}, bag)
}

func TestDeal_ListDefaults(t *testing.T) {
	d := newTestDispatcher(t)
	got := requestJSON(t, d, "bitrix_deal_list", nil)
	assert.JSONEq(t, `{"method":"crm.deal.list","payload":{"filter":{},"select":["*"],"order":{},"start":0}}`, got)
}

func TestDeal_ListRejectsBadShapes(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch("bitrix_deal_list", map[string]any{"filter": []any{"x"}})
	requireValidation(t, err, `Parameter "filter" must be an object when provided`)

	_, err = d.Dispatch("bitrix_deal_list", map[string]any{"start": -5.0})
	requireValidation(t, err, `Parameter "start" must be a non-negative number`)
}

func TestUpdate_EmptyFields(t *testing.T) {
	d := newTestDispatcher(t)
	for _, tool := range []string{"bitrix_deal_update", "bitrix_lead_update", "bitrix_contact_update", "bitrix_company_update", "bitrix_activity_update"} {
		_, err := d.Dispatch(tool, map[string]any{"id": 1.0, "fields": map[string]any{}})
		requireValidation(t, err, `Parameter "fields" must include at least one field`)
	}
	_, err := d.Dispatch("bitrix_task_update", map[string]any{"taskId": 1.0, "fields": map[string]any{}})
	requireValidation(t, err, `Parameter "fields" must include at least one field`)
}

func TestDispatch_Idempotent(t *testing.T) {
	d := newTestDispatcher(t)
	args := map[string]any{
		"title":  "Same",
		"fields": map[string]any{"OPPORTUNITY": 10.0, "CURRENCY_ID": "USD"},
	}
	first, err := d.Dispatch("bitrix_deal_add", args)
	require.NoError(t, err)
	second, err := d.Dispatch("bitrix_deal_add", args)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second dispatch differs (-first +second):\n%s", diff)
	}
	want := engine.Request{
		Method: "crm.deal.add",
		Payload: map[string]any{"fields": map[string]any{
			"TITLE": "Same", "OPPORTUNITY": 10.0, "CURRENCY_ID": "USD",
		}},
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestDeal_Convenience(t *testing.T) {
	d := newTestDispatcher(t)
	cases := []struct {
		tool string
		args map[string]any
		want string
	}{
		{
			tool: "bitrix_deal_search",
			args: map[string]any{"filter": map[string]any{"STAGE_ID": "NEW"}},
			want: `{"method":"crm.deal.list","payload":{"filter":{"STAGE_ID":"NEW"},"start":0,"limit":50}}`,
		},
		{
			tool: "bitrix_deal_filter_by_budget",
			args: map[string]any{"minBudget": 1000.0, "limit": 5.0},
			want: `{"method":"crm.deal.list","payload":{"filter":{">=OPPORTUNITY":1000},"start":0,"limit":5}}`,
		},
		{
			tool: "bitrix_deal_filter_by_pipeline",
			args: map[string]any{"categoryId": 2.0},
			want: `{"method":"crm.deal.list","payload":{"filter":{"CATEGORY_ID":2},"start":0,"limit":50}}`,
		},
		{
			tool: "bitrix_deal_latest",
			args: nil,
			want: `{"method":"crm.deal.list","payload":{"filter":{},"order":{"DATE_CREATE":"DESC"},"start":0,"limit":10}}`,
		},
		{
			tool: "bitrix_deal_stage_list",
			args: map[string]any{"categoryId": -3.0},
			want: `{"method":"crm.dealcategory.stage.list","payload":{"id":0}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			assert.JSONEq(t, tc.want, requestJSON(t, d, tc.tool, tc.args))
		})
	}

	_, err := d.Dispatch("bitrix_deal_filter_by_budget", nil)
	requireValidation(t, err, `At least one of "minBudget" or "maxBudget" must be provided`)
}
