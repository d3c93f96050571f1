package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Patil2099/posthog/internal/config"
	"github.com/Patil2099/posthog/internal/models"
)

func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fnErr := fn()

	_ = w.Close()
	os.Stdout = originalStdout

	output, readErr := io.ReadAll(r)
	require.NoError(t, readErr)
	_ = r.Close()

	return string(output), fnErr
}

func testConfig() *config.Config {
	return &config.Config{
		PostHogHost:          "https://posthog.test",
		APIKey:               "phx_test",
		Port:                 "3000",
		PollInterval:         time.Millisecond,
		PollTimeout:          time.Second,
		ConversionWindowDays: 14,
	}
}

func stubConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	original := loadConfig
	loadConfig = func() (*config.Config, error) {
		copied := *cfg
		return &copied, nil
	}
	t.Cleanup(func() {
		loadConfig = original
	})
}

func stubClient(t *testing.T, client backendClient) {
	t.Helper()
	original := newClient
	newClient = func(*config.Config) backendClient { return client }
	t.Cleanup(func() {
		newClient = original
	})
}

func stubTerminal(t *testing.T, terminal bool) {
	t.Helper()
	original := isTerminal
	isTerminal = func() bool { return terminal }
	t.Cleanup(func() {
		isTerminal = original
	})
}

// fakeClient serves canned funnel results and definitions
type fakeClient struct {
	mu       sync.Mutex
	result   any
	bins     *models.TimeConversionBins
	err      error
	people   []models.Person
	requests []models.RequestParams
	insights []models.InsightRequest
	events   []models.EventDefinition
}

func (c *fakeClient) Funnel(_ context.Context, params models.RequestParams) (*models.FunnelResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, params)
	if c.err != nil {
		return nil, c.err
	}

	var payload any = c.result
	if params.FunnelVizType == models.FunnelVizTimeToConvert && c.bins != nil {
		payload = c.bins
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	refreshed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.FunnelResponse{Result: body, LastRefresh: &refreshed}, nil
}

func (c *fakeClient) Persons(_ context.Context, uuids []string) ([]models.Person, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	people := []models.Person{}
	for _, p := range c.people {
		for _, id := range uuids {
			if p.UUID == id {
				people = append(people, p)
			}
		}
	}
	return people, nil
}

func (c *fakeClient) CreateInsight(_ context.Context, req models.InsightRequest) (*models.Insight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insights = append(c.insights, req)
	return &models.Insight{ID: 42, ShortID: "aBc123", Name: req.Name, Filters: req.Filters, Saved: req.Saved}, nil
}

func (c *fakeClient) PropertyDefinitions(_ context.Context, kind models.PropertyDefinitionType, _ string) ([]models.PropertyDefinition, error) {
	if kind == models.PropertyDefinitionPerson {
		return []models.PropertyDefinition{{ID: "p1", Name: "email"}, {ID: "p2", Name: "$browser_version"}}, nil
	}
	return []models.PropertyDefinition{{ID: "e1", Name: "$browser"}, {ID: "e2", Name: "$os"}}, nil
}

func (c *fakeClient) EventDefinitions(context.Context, string) ([]models.EventDefinition, error) {
	return c.events, nil
}

func (c *fakeClient) Cohorts(context.Context) ([]models.Cohort, error) {
	return []models.Cohort{{ID: 7, Name: "Browser switchers"}}, nil
}

func (c *fakeClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func signupSteps() []models.FunnelStep {
	return []models.FunnelStep{
		{Name: "$pageview", Order: 0, Count: intPtr(200), People: []string{"u1", "u2"}},
		{Name: "signup", Order: 1, Count: intPtr(50), AverageConversionTime: floatPtr(90), People: []string{"u2"}},
		{Name: "purchase", Order: 2, Count: intPtr(20), AverageConversionTime: floatPtr(3600)},
	}
}
