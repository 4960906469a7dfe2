package storage

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/database"
)

// schema returns the DDL statements for the dialect. Only the primary key
// and float column types differ between PostgreSQL and SQLite.
func schema(dialect database.Dialect) []string {
	pk, float := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if dialect == database.Postgres {
		pk, float = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS site (
	id          %s,
	url         VARCHAR(255) NOT NULL UNIQUE,
	name        VARCHAR(255) NOT NULL,
	status      VARCHAR(16)  NOT NULL,
	status_time BIGINT       NOT NULL,
	last_error  TEXT         NOT NULL DEFAULT ''
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page (
	id      %s,
	site_id BIGINT       NOT NULL REFERENCES site(id) ON DELETE CASCADE,
	path    VARCHAR(2048) NOT NULL,
	code    INTEGER      NOT NULL,
	content TEXT         NOT NULL,
	UNIQUE (site_id, path)
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lemma (
	id        %s,
	site_id   BIGINT       NOT NULL REFERENCES site(id) ON DELETE CASCADE,
	lemma     VARCHAR(255) NOT NULL,
	frequency INTEGER      NOT NULL,
	UNIQUE (site_id, lemma)
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS posting (
	id         %s,
	page_id    BIGINT NOT NULL REFERENCES page(id) ON DELETE CASCADE,
	lemma_id   BIGINT NOT NULL REFERENCES lemma(id) ON DELETE CASCADE,
	lemma_rank %s     NOT NULL,
	UNIQUE (page_id, lemma_id)
)`, pk, float),
		`CREATE INDEX IF NOT EXISTS idx_posting_lemma ON posting (lemma_id)`,
	}
}
