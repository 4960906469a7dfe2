// Package statistics summarizes the index per configured site.
package statistics

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
)

type Total struct {
	Sites    int  `json:"sites"`
	Pages    int  `json:"pages"`
	Lemmas   int  `json:"lemmas"`
	Indexing bool `json:"indexing"`
}

// SiteDetail describes one configured site. Status is empty and the counts
// are zero for a site that was never crawled.
type SiteDetail struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusTime int64  `json:"statusTime"`
	Error      string `json:"error,omitempty"`
	Pages      int    `json:"pages"`
	Lemmas     int    `json:"lemmas"`
}

type Statistics struct {
	Total    Total        `json:"total"`
	Detailed []SiteDetail `json:"detailed"`
}

// IndexingState reports whether a crawl is in progress.
type IndexingState interface {
	IsIndexing(ctx context.Context) (bool, error)
}

type Service struct {
	store storage.IndexStore
	sites []config.SiteConfig
	state IndexingState
}

func New(store storage.IndexStore, sites []config.SiteConfig, state IndexingState) *Service {
	return &Service{store: store, sites: sites, state: state}
}

// Get collects totals and per-site detail in configuration order.
func (s *Service) Get(ctx context.Context) (*Statistics, error) {
	indexing, err := s.state.IsIndexing(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking indexing state: %w", err)
	}
	stats := &Statistics{
		Total:    Total{Sites: len(s.sites), Indexing: indexing},
		Detailed: make([]SiteDetail, 0, len(s.sites)),
	}
	for _, sc := range s.sites {
		detail, err := s.detail(ctx, sc)
		if err != nil {
			return nil, err
		}
		stats.Total.Pages += detail.Pages
		stats.Total.Lemmas += detail.Lemmas
		stats.Detailed = append(stats.Detailed, detail)
	}
	return stats, nil
}

func (s *Service) detail(ctx context.Context, sc config.SiteConfig) (SiteDetail, error) {
	detail := SiteDetail{URL: sc.URL, Name: sc.Name}
	site, err := s.store.FindSiteByURL(ctx, sc.URL)
	if errors.Is(err, storage.ErrNotFound) {
		return detail, nil
	}
	if err != nil {
		return detail, fmt.Errorf("looking up site %s: %w", sc.URL, err)
	}
	detail.Status = string(site.Status)
	detail.StatusTime = site.StatusTime.UnixMilli()
	detail.Error = site.LastError
	if detail.Pages, err = s.store.CountPages(ctx, site.ID); err != nil {
		return detail, fmt.Errorf("counting pages of %s: %w", sc.URL, err)
	}
	if detail.Lemmas, err = s.store.CountLemmas(ctx, site.ID); err != nil {
		return detail, fmt.Errorf("counting lemmas of %s: %w", sc.URL, err)
	}
	return detail, nil
}
