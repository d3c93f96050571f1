// Package taxonomy models the searchable picker over event properties,
// person properties and cohorts.
package taxonomy

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// GroupType identifies a group of selectable items
type GroupType string

const (
	GroupEvents           GroupType = "events"
	GroupEventProperties  GroupType = "event_properties"
	GroupPersonProperties GroupType = "person_properties"
	GroupCohorts          GroupType = "cohorts"
)

// Valid reports whether t names a group LoadGroups can build
func (t GroupType) Valid() bool {
	_, ok := groupNames[t]
	return ok
}

// DefaultGroupTypes are shown when the caller does not choose any
var DefaultGroupTypes = []GroupType{GroupEventProperties, GroupPersonProperties, GroupCohorts}

// Item is one selectable entry
type Item struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// Group is a tab of items
type Group struct {
	Type  GroupType `json:"type"`
	Name  string    `json:"name"`
	Items []Item    `json:"items"`
}

// Props configures a Filter
type Props struct {
	// Key identifies the filter; one is generated when empty
	Key string
	// GroupType is the tab opened first; defaults to the first group
	GroupType GroupType
	// Value preselects the item with this value in the first tab
	Value string
	// OnChange receives the committed selection
	OnChange func(group GroupType, item Item)
	// OnClose is called when the picker asks to be dismissed
	OnClose func()
}

var keyCounter atomic.Uint64

// Filter holds the search query, the active tab and the cursor position
type Filter struct {
	key   string
	props Props

	mu          sync.Mutex
	groups      []Group
	searchQuery string
	activeTab   int
	index       int
}

// New creates a filter over groups
func New(groups []Group, props Props) *Filter {
	key := props.Key
	if key == "" {
		key = fmt.Sprintf("taxonomic-filter-%d", keyCounter.Add(1)-1)
	}

	f := &Filter{key: key, props: props, groups: groups}
	if props.GroupType != "" {
		if idx := f.groupIndex(props.GroupType); idx >= 0 {
			f.activeTab = idx
		}
	}
	if props.Value != "" {
		if idx := f.indexOfValue(props.Value); idx >= 0 {
			f.index = idx
		}
	}
	return f
}

// Key returns the filter's identifier
func (f *Filter) Key() string {
	return f.key
}

// SetGroups replaces the items, keeping the active tab when it still exists
func (f *Filter) SetGroups(groups []Group) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var active GroupType
	if f.activeTab < len(f.groups) {
		active = f.groups[f.activeTab].Type
	}
	f.groups = groups
	f.activeTab = max(f.groupIndex(active), 0)
	f.clampIndex()
}

// SetSearchQuery filters every group and moves the cursor to the top
func (f *Filter) SetSearchQuery(query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchQuery = query
	f.index = 0
}

// SearchQuery returns the current query
func (f *Filter) SearchQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchQuery
}

// Results returns the items of group that match the search query
func (f *Filter) Results(group GroupType) []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.groupIndex(group)
	if idx < 0 {
		return []Item{}
	}
	return f.resultsAt(idx)
}

// ActiveGroup returns the open tab
func (f *Filter) ActiveGroup() (Group, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groups) == 0 {
		return Group{}, false
	}
	return f.groups[f.activeTab], true
}

// Index returns the cursor position within the active tab's results
func (f *Filter) Index() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Selected returns the item under the cursor
func (f *Filter) Selected() (Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectedLocked()
}

// MoveUp moves the cursor up, wrapping to the last result
func (f *Filter) MoveUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.activeCount()
	if n == 0 {
		return
	}
	f.index = (f.index - 1 + n) % n
}

// MoveDown moves the cursor down, wrapping to the first result
func (f *Filter) MoveDown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.activeCount()
	if n == 0 {
		return
	}
	f.index = (f.index + 1) % n
}

// TabLeft opens the previous tab, wrapping to the last one
func (f *Filter) TabLeft() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groups) == 0 {
		return
	}
	f.activeTab = (f.activeTab - 1 + len(f.groups)) % len(f.groups)
	f.index = 0
}

// TabRight opens the next tab, wrapping to the first one
func (f *Filter) TabRight() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groups) == 0 {
		return
	}
	f.activeTab = (f.activeTab + 1) % len(f.groups)
	f.index = 0
}

// SelectSelected commits the item under the cursor through OnChange. It
// reports whether there was anything to commit.
func (f *Filter) SelectSelected() bool {
	f.mu.Lock()
	item, ok := f.selectedLocked()
	var group GroupType
	if ok {
		group = f.groups[f.activeTab].Type
	}
	f.mu.Unlock()

	if !ok {
		return false
	}
	if f.props.OnChange != nil {
		f.props.OnChange(group, item)
	}
	return true
}

// Close asks the owner to dismiss the picker
func (f *Filter) Close() {
	if f.props.OnClose != nil {
		f.props.OnClose()
	}
}

func (f *Filter) selectedLocked() (Item, bool) {
	if len(f.groups) == 0 {
		return Item{}, false
	}
	results := f.resultsAt(f.activeTab)
	if f.index < 0 || f.index >= len(results) {
		return Item{}, false
	}
	return results[f.index], true
}

func (f *Filter) resultsAt(idx int) []Item {
	items := f.groups[idx].Items
	query := strings.ToLower(strings.TrimSpace(f.searchQuery))
	if query == "" {
		return slices.Clone(items)
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), query) {
			out = append(out, item)
		}
	}
	return out
}

func (f *Filter) activeCount() int {
	if len(f.groups) == 0 {
		return 0
	}
	return len(f.resultsAt(f.activeTab))
}

func (f *Filter) clampIndex() {
	n := f.activeCount()
	if f.index >= n {
		f.index = max(n-1, 0)
	}
}

func (f *Filter) groupIndex(group GroupType) int {
	return slices.IndexFunc(f.groups, func(g Group) bool { return g.Type == group })
}

func (f *Filter) indexOfValue(value string) int {
	if len(f.groups) == 0 {
		return -1
	}
	return slices.IndexFunc(f.groups[f.activeTab].Items, func(item Item) bool { return item.Value == value })
}
