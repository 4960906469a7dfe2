package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
)

func TestInTxRollsBackWhenContextEnds(t *testing.T) {
	s := New()
	site := &storage.Site{URL: "http://a.test", Name: "A", Status: storage.StatusIndexing, StatusTime: time.Now()}
	if err := s.CreateSite(context.Background(), site); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	page := &storage.Page{SiteID: site.ID, Path: "/late", Code: 200, Content: "<p>x</p>"}
	err := s.InTx(ctx, func(tx storage.IndexStore) error {
		if err := tx.CreatePage(ctx, page); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("InTx() error = %v, want context.Canceled", err)
	}
	if ok, _ := s.PageExists(context.Background(), site.ID, "/late"); ok {
		t.Error("page written by a cancelled transaction was kept")
	}
	if n, _ := s.CountPages(context.Background(), site.ID); n != 0 {
		t.Errorf("pages = %d, want 0", n)
	}
}

func TestInTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	site := &storage.Site{URL: "http://a.test", Name: "A", Status: storage.StatusIndexing, StatusTime: time.Now()}
	if err := s.CreateSite(ctx, site); err != nil {
		t.Fatal(err)
	}
	err := s.InTx(ctx, func(tx storage.IndexStore) error {
		_, err := tx.UpsertLemma(ctx, site.ID, "лес")
		return err
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if l, err := s.FindLemma(ctx, site.ID, "лес"); err != nil || l.Frequency != 1 {
		t.Errorf("FindLemma() = %+v, %v", l, err)
	}
}
