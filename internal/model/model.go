// Package model defines the canonical domain types shared across the
// ingestion pipeline: sources, alerts, and the enumerations CAP defines
// for them.
package model

import (
	"encoding/json"
	"time"
)

// Status is the CAP alert message status.
type Status string

// Supported CAP statuses.
const (
	StatusActual   Status = "Actual"
	StatusExercise Status = "Exercise"
	StatusSystem   Status = "System"
	StatusTest     Status = "Test"
	StatusDraft    Status = "Draft"
)

// MsgType is the CAP message type.
type MsgType string

// Supported CAP message types.
const (
	MsgTypeAlert  MsgType = "Alert"
	MsgTypeUpdate MsgType = "Update"
	MsgTypeCancel MsgType = "Cancel"
	MsgTypeAck    MsgType = "Ack"
	MsgTypeError  MsgType = "Error"
)

// Scope is the CAP alert distribution scope.
type Scope string

// Supported CAP scopes.
const (
	ScopePublic     Scope = "Public"
	ScopeRestricted Scope = "Restricted"
	ScopePrivate    Scope = "Private"
)

// Urgency is the CAP info urgency enumeration.
type Urgency string

// Supported CAP urgency values.
const (
	UrgencyImmediate Urgency = "Immediate"
	UrgencyExpected  Urgency = "Expected"
	UrgencyFuture    Urgency = "Future"
	UrgencyPast      Urgency = "Past"
	UrgencyUnknown   Urgency = "Unknown"
)

// Severity is the CAP info severity enumeration.
type Severity string

// Supported CAP severity values, ordered most to least severe.
const (
	SeverityExtreme  Severity = "Extreme"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
	SeverityUnknown  Severity = "Unknown"
)

// severityRank orders severities for findActive's severity-desc sort.
// Lower rank sorts first (more severe).
var severityRank = map[Severity]int{
	SeverityExtreme:  0,
	SeveritySevere:   1,
	SeverityModerate: 2,
	SeverityMinor:    3,
	SeverityUnknown:  4,
}

// Rank returns the sort rank for a severity; unrecognized values sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Certainty is the CAP info certainty enumeration.
type Certainty string

// Supported CAP certainty values.
const (
	CertaintyObserved Certainty = "Observed"
	CertaintyLikely   Certainty = "Likely"
	CertaintyPossible Certainty = "Possible"
	CertaintyUnlikely Certainty = "Unlikely"
	CertaintyUnknown  Certainty = "Unknown"
)

// GeoJSON is a GeoJSON geometry object: either a Polygon or MultiPolygon in
// [lon, lat] order, produced by internal/geo. Coordinates is kept as raw
// JSON because its nesting depth differs between the two types (3 levels
// for Polygon, 4 for MultiPolygon) and it round-trips to the store as text
// either way.
type GeoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Area is one CAP <area> block, carrying both the raw publisher strings and
// the derived, validated geometry.
type Area struct {
	AreaDesc string    `json:"areaDesc"`
	Polygon  []string  `json:"polygon,omitempty"`
	Circle   []string  `json:"circle,omitempty"`
	Geocode  []Geocode `json:"geocode,omitempty"`
	Altitude *float64  `json:"altitude,omitempty"`
	Ceiling  *float64  `json:"ceiling,omitempty"`
	GeoJSON  *GeoJSON  `json:"geoJson,omitempty"`

	// BBoxMinLat/MaxLat/MinLon/MaxLon are the indexed bounding box of
	// GeoJSON, used by the store's spatial range query. Zero-valued and
	// absent from queries when GeoJSON is nil.
	BBoxMinLat float64 `json:"-"`
	BBoxMaxLat float64 `json:"-"`
	BBoxMinLon float64 `json:"-"`
	BBoxMaxLon float64 `json:"-"`
}

// Geocode is a free-form publisher-assigned area code (e.g. UGC, SAME).
type Geocode struct {
	ValueName string `json:"valueName"`
	Value     string `json:"value"`
}

// Parameter is a free-form CAP <parameter> name/value pair.
type Parameter struct {
	ValueName string `json:"valueName"`
	Value     string `json:"value"`
}

// Info is one CAP <info> block.
type Info struct {
	Language     string      `json:"language,omitempty"`
	Category     []string    `json:"category"`
	Event        string      `json:"event"`
	ResponseType []string    `json:"responseType,omitempty"`
	Urgency      Urgency     `json:"urgency"`
	Severity     Severity    `json:"severity"`
	Certainty    Certainty   `json:"certainty"`
	Effective    time.Time   `json:"effective"`
	Onset        *time.Time  `json:"onset,omitempty"`
	Expires      time.Time   `json:"expires"`
	SenderName   string      `json:"senderName"`
	Headline     string      `json:"headline"`
	Description  string      `json:"description"`
	Instruction  string      `json:"instruction,omitempty"`
	Web          string      `json:"web,omitempty"`
	Contact      string      `json:"contact,omitempty"`
	Parameter    []Parameter `json:"parameter,omitempty"`
	Area         []Area      `json:"area"`
}

// HasExpiredAt reports whether this info block is no longer active at t.
func (i Info) HasExpiredAt(t time.Time) bool {
	return !i.Expires.After(t)
}

// Alert is the canonical, normalized alert record persisted by the store.
type Alert struct {
	ID         string `json:"id"`
	SourceID   string `json:"sourceId"`
	Identifier string `json:"identifier"`

	Sender     string    `json:"sender"`
	Sent       time.Time `json:"sent"`
	Status     Status    `json:"status"`
	MsgType    MsgType   `json:"msgType"`
	Scope      Scope     `json:"scope"`
	Code       []string  `json:"code,omitempty"`
	Note       string    `json:"note,omitempty"`
	References string    `json:"references,omitempty"`
	Incidents  string    `json:"incidents,omitempty"`

	Info []Info `json:"info"`

	FetchedAt time.Time `json:"fetchedAt"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsActiveAt computes the derived active bit: true iff at least one info
// block's expires is strictly after t (spec.md §3/§4.5).
func (a Alert) IsActiveAt(t time.Time) bool {
	for _, info := range a.Info {
		if info.Expires.After(t) {
			return true
		}
	}
	return false
}

// LatestExpiry returns the most distant expires timestamp across all info
// blocks, or the zero Time if there are none. Used by the janitor's
// retention sweep.
func (a Alert) LatestExpiry() time.Time {
	var latest time.Time
	for _, info := range a.Info {
		if info.Expires.After(latest) {
			latest = info.Expires
		}
	}
	return latest
}

// MaxSeverity returns the most severe Severity across all info blocks, for
// display and query ordering. Returns SeverityUnknown if there are none.
func (a Alert) MaxSeverity() Severity {
	best := SeverityUnknown
	bestRank := best.Rank()
	for _, info := range a.Info {
		if r := info.Severity.Rank(); r < bestRank {
			best = info.Severity
			bestRank = r
		}
	}
	return best
}

// StripComputedGeometry returns a copy of the alert with every area's
// GeoJSON (and bbox) cleared. Both the scheduler's upsert path and the
// manual-refresh HTTP handler must call this before writing an
// incoming/parsed payload to the store: geometry is always recomputed by
// internal/geo and persisted separately, never accepted verbatim from a
// fetch cycle (spec.md §4.5 step 5, §9).
func StripComputedGeometry(a Alert) Alert {
	out := a
	out.Info = make([]Info, len(a.Info))
	for i, info := range a.Info {
		infoCopy := info
		infoCopy.Area = make([]Area, len(info.Area))
		for j, area := range info.Area {
			areaCopy := area
			areaCopy.GeoJSON = nil
			areaCopy.BBoxMinLat, areaCopy.BBoxMaxLat = 0, 0
			areaCopy.BBoxMinLon, areaCopy.BBoxMaxLon = 0, 0
			infoCopy.Area[j] = areaCopy
		}
		out.Info[i] = infoCopy
	}
	return out
}

// Source is a single upstream publisher's feed configuration (C3).
type Source struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	FeedURL               string            `json:"feedUrl"`
	Country               string            `json:"country,omitempty"`
	Language              string            `json:"language,omitempty"`
	Active                bool              `json:"active"`
	Default               bool              `json:"default"`
	FetchIntervalSeconds  int               `json:"fetchIntervalSeconds"`
	TotalFetches          int64             `json:"totalFetches"`
	SuccessfulFetches     int64             `json:"successfulFetches"`
	FailedFetches         int64             `json:"failedFetches"`
	LastFetchedAt         *time.Time        `json:"lastFetchedAt,omitempty"`
	LastSuccessfulFetchAt *time.Time        `json:"lastSuccessfulFetchAt,omitempty"`
	LastErrorMessage      string            `json:"lastErrorMessage,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// MinFetchIntervalSeconds is the minimum allowed fetch interval for a
// source (spec.md §3).
const MinFetchIntervalSeconds = 30

// NeedsFetching reports whether the source is due for another poll, given
// the current time.
func (s Source) NeedsFetching(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*s.LastFetchedAt) >= time.Duration(s.FetchIntervalSeconds)*time.Second
}

// SchedulerStats holds monotonically increasing scheduler counters,
// exposed read-only through the query API (spec.md §3/§8).
type SchedulerStats struct {
	Cycles       int64 `json:"cycles"`
	Fetches      int64 `json:"fetches"`
	Successes    int64 `json:"successes"`
	Failures     int64 `json:"failures"`
	NewAlerts    int64 `json:"newAlerts"`
	UpdatedAlert int64 `json:"updatedAlerts"`
	Expired      int64 `json:"expired"`
	Cleaned      int64 `json:"cleaned"`
}

// ParserStats holds monotonically increasing parser counters.
type ParserStats struct {
	RequestsTotal    int64 `json:"requestsTotal"`
	CacheHits        int64 `json:"cacheHits"`
	HTMLFallbacks    int64 `json:"htmlFallbacks"`
	SuccessfulFetch  int64 `json:"successfulFetches"`
	FailedFetch      int64 `json:"failedFetches"`
	IdentifierMisses int64 `json:"identifierMisses"`
}
