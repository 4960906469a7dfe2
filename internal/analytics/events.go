// Package analytics records what the engine does (searches, indexed pages,
// crawl outcomes), ships the events over Kafka when it is enabled and
// aggregates them into the stats served by /api/analytics.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventIndexPage  EventType = "index_page"
	EventSiteStatus EventType = "site_status"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Site      string    `json:"site,omitempty"`
	Lemmas    []string  `json:"lemmas"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IndexEvent is emitted once per page the indexer processed, successful or
// not.
type IndexEvent struct {
	Type       EventType `json:"type"`
	Site       string    `json:"site"`
	PageID     int64     `json:"page_id"`
	Path       string    `json:"path"`
	LemmaCount int       `json:"lemma_count"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SiteEvent reports a site entering or leaving the INDEXING state.
type SiteEvent struct {
	Type         EventType `json:"type"`
	RunID        string    `json:"run_id,omitempty"`
	Site         string    `json:"site"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	PagesVisited int       `json:"pages_visited"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewSearchEvent() SearchEvent {
	return SearchEvent{Type: EventSearch, Timestamp: time.Now().UTC()}
}

func NewIndexEvent(site, path string, pageID int64) IndexEvent {
	return IndexEvent{Type: EventIndexPage, Site: site, Path: path, PageID: pageID, Timestamp: time.Now().UTC()}
}

func NewSiteEvent(runID, site, status string) SiteEvent {
	return SiteEvent{Type: EventSiteStatus, RunID: runID, Site: site, Status: status, Timestamp: time.Now().UTC()}
}

// Tracker accepts events without blocking the caller.
type Tracker interface {
	Track(event any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Track(any) {}

// Decode reads the type discriminator of a serialized event and returns the
// matching event struct.
func Decode(raw []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	var (
		event any
		err   error
	)
	switch head.Type {
	case EventSearch:
		var e SearchEvent
		err = json.Unmarshal(raw, &e)
		event = e
	case EventIndexPage:
		var e IndexEvent
		err = json.Unmarshal(raw, &e)
		event = e
	case EventSiteStatus:
		var e SiteEvent
		err = json.Unmarshal(raw, &e)
		event = e
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", head.Type, err)
	}
	return event, nil
}

func typeOf(event any) EventType {
	switch e := event.(type) {
	case SearchEvent:
		return e.Type
	case IndexEvent:
		return e.Type
	case SiteEvent:
		return e.Type
	}
	return ""
}
