package models

import "time"

// Person is a profile record returned by the persons endpoint
type Person struct {
	ID          any            `json:"id,omitempty"`
	UUID        string         `json:"uuid"`
	Name        string         `json:"name,omitempty"`
	DistinctIDs []string       `json:"distinct_ids,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
}

// DisplayName returns the best human-readable identifier for the person
func (p Person) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if email, ok := p.Properties["email"].(string); ok && email != "" {
		return email
	}
	if len(p.DistinctIDs) > 0 {
		return p.DistinctIDs[0]
	}
	return p.UUID
}

// InsightRequest persists a named snapshot of the filters
type InsightRequest struct {
	Filters FilterState `json:"filters"`
	Name    string      `json:"name"`
	Saved   bool        `json:"saved"`
}

// Insight is the backend's record of a saved insight
type Insight struct {
	ID          int         `json:"id"`
	ShortID     string      `json:"short_id,omitempty"`
	Name        string      `json:"name"`
	Filters     FilterState `json:"filters"`
	Saved       bool        `json:"saved"`
	LastRefresh *time.Time  `json:"last_refresh,omitempty"`
}
