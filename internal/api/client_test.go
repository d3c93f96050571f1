package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/models"
)

var _ funnel.Backend = (*Client)(nil)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	auth   string
	body   []byte
}

func newTestClient(t *testing.T, handler func(ctx *fasthttp.RequestCtx)) (*Client, *[]recordedRequest) {
	t.Helper()

	recorded := &[]recordedRequest{}
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			query := map[string]string{}
			ctx.QueryArgs().VisitAll(func(k, v []byte) {
				query[string(k)] = string(v)
			})
			*recorded = append(*recorded, recordedRequest{
				method: string(ctx.Method()),
				path:   string(ctx.Path()),
				query:  query,
				auth:   string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)),
				body:   append([]byte(nil), ctx.PostBody()...),
			})
			handler(ctx)
		},
	}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	hc := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	client := NewClient("http://posthog.test/", "phx_test", WithHTTPClient(hc), WithLogger(zap.NewNop()))
	return client, recorded
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	body, _ := json.Marshal(payload)
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func TestClientFunnel(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"result":       []map[string]any{{"name": "a", "order": 0, "count": 5}},
			"loading":      false,
			"last_refresh": "2024-01-02T03:04:05Z",
		})
	})

	params := funnel.BuildAPIParams(models.FilterState{
		Events: []models.Entity{{ID: "$pageview", Type: models.EntityTypeEvents}, {ID: "signup", Type: models.EntityTypeEvents, Order: 1}},
	}, funnel.ParamOptions{ConversionWindowDays: 14, Refresh: true})

	resp, err := client.Funnel(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, resp.Loading)
	require.NotNil(t, resp.LastRefresh)

	var result models.RawFunnelResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, models.ResultFlat, result.Kind)

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	assert.Equal(t, "POST", req.method)
	assert.Equal(t, "/api/insight/funnel/", req.path)
	assert.Equal(t, "true", req.query["refresh"])
	assert.Equal(t, "Bearer phx_test", req.auth)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(req.body, &sent))
	assert.Equal(t, "FUNNELS", sent["insight"])
	assert.Equal(t, float64(14), sent["funnel_window_days"])
	assert.NotContains(t, sent, "refresh")
}

func TestClientFunnelWithoutRefresh(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"result": nil, "loading": true})
	})

	resp, err := client.Funnel(context.Background(), models.RequestParams{})
	require.NoError(t, err)
	assert.True(t, resp.Loading)
	assert.NotContains(t, (*recorded)[0].query, "refresh")
}

func TestClientStatusError(t *testing.T) {
	client, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusUnauthorized, map[string]string{"detail": "Invalid personal API key."})
	})

	_, err := client.Funnel(context.Background(), models.RequestParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 401, statusErr.Code)
	assert.Equal(t, "Invalid personal API key.", statusErr.Detail)
	assert.Contains(t, err.Error(), "/api/insight/funnel/")
}

func TestClientPlainTextError(t *testing.T) {
	client, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetBodyString("upstream down\n")
	})

	_, err := client.Persons(context.Background(), []string{"u1"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "upstream down", statusErr.Detail)
}

func TestClientPersons(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"results": []map[string]any{{"uuid": "u1", "name": "Ada"}, {"uuid": "u2"}},
		})
	})

	people, err := client.Persons(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Ada", people[0].Name)

	req := (*recorded)[0]
	assert.Equal(t, "GET", req.method)
	assert.Equal(t, "/api/person/", req.path)
	assert.Equal(t, "u1,u2", req.query["uuid"])
}

func TestClientPersonsEmptySkipsRequest(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		t.Error("no request expected")
	})

	people, err := client.Persons(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, people)
	assert.Empty(t, *recorded)
}

func TestClientCreateInsight(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusCreated, map[string]any{"id": 7, "short_id": "abc", "name": "Signup", "saved": true})
	})

	insight, err := client.CreateInsight(context.Background(), models.InsightRequest{
		Filters: models.FilterState{Insight: models.InsightFunnels},
		Name:    "Signup",
		Saved:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, insight.ID)
	assert.Equal(t, "abc", insight.ShortID)

	req := (*recorded)[0]
	assert.Equal(t, "/api/insight/", req.path)
	assert.JSONEq(t, `{"filters":{"insight":"FUNNELS"},"name":"Signup","saved":true}`, string(req.body))
}

func TestClientDefinitions(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/projects/@current/property_definitions/":
			writeJSON(ctx, fasthttp.StatusOK, map[string]any{"results": []map[string]any{{"id": "p1", "name": "$browser"}}})
		case "/api/projects/@current/event_definitions/":
			writeJSON(ctx, fasthttp.StatusOK, map[string]any{"results": []map[string]any{{"id": "e1", "name": "$pageview"}}})
		case "/api/cohort/":
			writeJSON(ctx, fasthttp.StatusOK, map[string]any{"results": []map[string]any{{"id": 3, "name": "Power users"}}})
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	})
	ctx := context.Background()

	props, err := client.PropertyDefinitions(ctx, models.PropertyDefinitionPerson, "brow")
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "$browser", props[0].Name)
	assert.Equal(t, "person", (*recorded)[0].query["type"])
	assert.Equal(t, "brow", (*recorded)[0].query["search"])

	events, err := client.EventDefinitions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "$pageview", events[0].Name)
	assert.NotContains(t, (*recorded)[1].query, "search")

	cohorts, err := client.Cohorts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cohorts[0].ID)
}

func TestClientCancelledContext(t *testing.T) {
	client, recorded := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Funnel(ctx, models.RequestParams{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *recorded)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	client, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		<-release
	})
	client.timeout = 20 * time.Millisecond

	_, err := client.Funnel(context.Background(), models.RequestParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fasthttp.ErrTimeout)
}

func TestClientDecodeError(t *testing.T) {
	client, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("<html>")
	})

	_, err := client.Cohorts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}
