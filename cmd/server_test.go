package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskdoc/internal/billing"
	"github.com/sells-group/riskdoc/internal/catalog"
	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/store"
)

const testCSV = "Raison sociale: ACME SAS\nSIRET: 123 456 789 00012\n"

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "riskdoc.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	env := buildEnv(&config.Config{}, st, catalog.Default())
	srv := httptest.NewServer(newServer(env, 1, nil).routes())
	t.Cleanup(func() {
		srv.Close()
		env.Close()
	})
	return srv, st
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "breakers")
}

func TestServer_ExtractBasic(t *testing.T) {
	srv, st := newTestServer(t)

	body, ct := multipartBody(t, "assessment.csv", testCSV, map[string]string{
		"tenant_id": "t1",
		"user_id":   "u1",
	})
	resp, err := http.Post(srv.URL+"/v1/extract", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out model.Extraction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, model.EngineDeterministic, out.Engine)
	assert.Equal(t, model.TierBasic, out.RequestedTier)
	assert.False(t, out.Degraded)
	require.NotNil(t, out.Candidate)

	// Deterministic extraction never produces a usage event.
	events, err := st.ListUsage(context.Background(), store.UsageFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Empty(t, events)

	now := time.Now()
	stats, err := st.ImportStats(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "u1", stats[0].UserID)
	assert.Equal(t, 1, stats[0].Count)
}

func TestServer_ExtractBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		want     int
	}{
		{"missing tenant", "a.csv", map[string]string{}, http.StatusBadRequest},
		{"missing file", "", map[string]string{"tenant_id": "t1"}, http.StatusBadRequest},
		{"unknown tier", "a.csv", map[string]string{"tenant_id": "t1", "tier": "gold"}, http.StatusBadRequest},
		{"unknown format", "a.txt", map[string]string{"tenant_id": "t1"}, http.StatusBadRequest},
		{"unreadable pdf", "a.pdf", map[string]string{"tenant_id": "t1"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.filename, testCSV, tt.fields)
			resp, err := http.Post(srv.URL+"/v1/extract", ct, body)
			require.NoError(t, err)
			defer resp.Body.Close() //nolint:errcheck
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_Margin(t *testing.T) {
	srv, st := newTestServer(t)
	_, err := st.UpsertSubscriptions(context.Background(), []model.Subscription{
		{TenantID: "t1", Plan: "pro", BillingMode: model.BillingMonthly, Active: true, StartedAt: time.Now().AddDate(-1, 0, 0)},
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/v1/tenants/t1/margin?period=2025-10")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap billing.MarginSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "2025-10", snap.Period)
	assert.InDelta(t, 49.0, snap.Revenue, 0.0001)
	assert.InDelta(t, 44.0, snap.GrossMargin, 0.0001)
}

func TestServer_MarginErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tenants/ghost/margin")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/tenants/t1/margin?period=October")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AlertsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/alerts")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var alerts []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alerts))
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

func TestServer_UsageListAndReview(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	ev := &model.UsageEvent{
		TenantID:     "t1",
		UserID:       "u1",
		Function:     model.FunctionImport,
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-5-20250929",
		InputTokens:  1000,
		OutputTokens: 200,
		Cost:         0.006,
	}
	require.NoError(t, st.InsertUsage(ctx, ev))

	resp, err := http.Get(srv.URL + "/v1/usage?tenant=t1&status=pending")
	require.NoError(t, err)
	var events []model.UsageEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	resp.Body.Close() //nolint:errcheck
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/v1/usage/"+ev.ID, strings.NewReader(`{"status":"validated"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := st.GetUsage(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UsageStatusValidated, got.Status)
}

func TestServer_UsageErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad status filter", http.MethodGet, "/v1/usage?status=done", "", http.StatusBadRequest},
		{"negative limit", http.MethodGet, "/v1/usage?limit=-1", "", http.StatusBadRequest},
		{"review unknown id", http.MethodPatch, "/v1/usage/missing", `{"status":"rejected"}`, http.StatusNotFound},
		{"review back to pending", http.MethodPatch, "/v1/usage/x", `{"status":"pending"}`, http.StatusBadRequest},
		{"review bad json", http.MethodPatch, "/v1/usage/x", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close() //nolint:errcheck
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
