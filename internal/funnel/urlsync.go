package funnel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/Patil2099/posthog/internal/models"
)

// InsightsPath is where funnel filters are reflected in the URL
const InsightsPath = "/insights"

// query keys carrying JSON documents rather than plain values
var jsonQueryKeys = map[string]bool{
	"actions":    true,
	"events":     true,
	"properties": true,
	"new_entity": true,
}

var intQueryKeys = map[string]bool{
	"funnel_step":      true,
	"funnel_from_step": true,
	"funnel_to_step":   true,
}

var boolQueryKeys = map[string]bool{
	"filter_test_accounts": true,
	"from_dashboard":       true,
}

// FiltersToQuery renders filters as URL query values. Lists and objects are
// JSON encoded; unset fields are left out.
func FiltersToQuery(filters models.FilterState) (url.Values, error) {
	body, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}

	values := url.Values{}
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			values.Set(key, v)
		case bool:
			values.Set(key, strconv.FormatBool(v))
		case float64:
			values.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", key, err)
			}
			values.Set(key, string(encoded))
		}
	}
	return values, nil
}

// FiltersFromQuery parses URL query values back into filters. Unknown keys
// are ignored.
func FiltersFromQuery(values url.Values) (models.FilterState, error) {
	fields := make(map[string]any, len(values))
	for key := range values {
		raw := values.Get(key)
		if raw == "" {
			continue
		}
		switch {
		case jsonQueryKeys[key]:
			var decoded any
			if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
				return models.FilterState{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			fields[key] = decoded
		case intQueryKeys[key]:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return models.FilterState{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			fields[key] = n
		case boolQueryKeys[key]:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return models.FilterState{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			fields[key] = b
		default:
			fields[key] = raw
		}
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return models.FilterState{}, fmt.Errorf("decode filters: %w", err)
	}
	var filters models.FilterState
	if err := json.Unmarshal(body, &filters); err != nil {
		return models.FilterState{}, fmt.Errorf("decode filters: %w", err)
	}
	return filters, nil
}

// InsightsURL builds the path+query the filters are reflected at
func InsightsURL(values url.Values) string {
	if len(values) == 0 {
		return InsightsPath
	}
	return InsightsPath + "?" + values.Encode()
}

// urlComparable holds the fields whose change in the URL triggers a reload
type urlComparable struct {
	DateFrom   string                  `json:"date_from,omitempty"`
	DateTo     string                  `json:"date_to,omitempty"`
	Actions    []models.Entity         `json:"actions,omitempty"`
	Events     []models.Entity         `json:"events,omitempty"`
	Display    models.ChartDisplayType `json:"display,omitempty"`
	Interval   string                  `json:"interval,omitempty"`
	Properties []models.PropertyFilter `json:"properties,omitempty"`
}

func urlFieldsEqual(a, b urlComparable) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// DefaultEvent picks the event used when a URL arrives without steps
func DefaultEvent(eventNames []string) string {
	if len(eventNames) == 0 || slices.Contains(eventNames, models.PageviewEvent) {
		return models.PageviewEvent
	}
	return eventNames[0]
}
