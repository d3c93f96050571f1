package models

// PropertyDefinitionType selects event or person property definitions
type PropertyDefinitionType string

const (
	PropertyDefinitionEvent  PropertyDefinitionType = "event"
	PropertyDefinitionPerson PropertyDefinitionType = "person"
)

// PropertyDefinition describes a property seen on events or persons
type PropertyDefinition struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	IsNumerical     bool   `json:"is_numerical,omitempty"`
	QueryUsage30Day *int   `json:"query_usage_30_day,omitempty"`
}

// EventDefinition describes an event name ingested by the project
type EventDefinition struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	VolumeCount30Day *int   `json:"volume_30_day,omitempty"`
}

// Cohort is a saved group of persons
type Cohort struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Count *int   `json:"count,omitempty"`
}

// Page is a paginated list response
type Page[T any] struct {
	Results []T     `json:"results"`
	Next    *string `json:"next,omitempty"`
}
