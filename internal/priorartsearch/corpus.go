package priorartsearch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/joelkehle/inventavault/internal/sqlitedb"
)

const corpusSchema = `
CREATE TABLE IF NOT EXISTS prior_art (
	url              TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	body             TEXT NOT NULL DEFAULT '',
	publication_date TEXT NOT NULL DEFAULT '',
	patent_number    TEXT NOT NULL DEFAULT '',
	search_text      TEXT NOT NULL DEFAULT ''
);
`

const corpusMaxTerms = 8

// Query boilerplate added by the planners; matching on it would return the
// whole corpus.
var corpusStopwords = map[string]struct{}{
	"patent": {}, "patents": {}, "prior": {}, "application": {}, "invention": {},
	"similar": {}, "database": {}, "with": {}, "that": {}, "from": {}, "into": {},
}

// CorpusSource searches a local SQLite table of known disclosures. It is the
// offline source for self-hosted deployments and tests.
type CorpusSource struct {
	db    *sqlx.DB
	limit int
}

type corpusRow struct {
	URL             string `db:"url"`
	Title           string `db:"title"`
	Summary         string `db:"summary"`
	Body            string `db:"body"`
	PublicationDate string `db:"publication_date"`
	PatentNumber    string `db:"patent_number"`
}

func OpenCorpus(path string) (*CorpusSource, error) {
	db, err := sqlitedb.Open(path, corpusSchema)
	if err != nil {
		return nil, err
	}
	return &CorpusSource{db: db, limit: DefaultNumResults}, nil
}

func (c *CorpusSource) Close() error {
	return c.db.Close()
}

func (c *CorpusSource) Name() string { return "corpus" }

// Lookup matches any query term longer than three characters against title,
// summary and body, best matches first. Both sides are folded with
// strings.ToLower since SQLite's lower() only folds ASCII.
func (c *CorpusSource) Lookup(ctx context.Context, query string) ([]RawCandidate, error) {
	terms := corpusTerms(query)
	if len(terms) == 0 {
		return []RawCandidate{}, nil
	}
	const haystack = "search_text LIKE ?"
	where := make([]string, 0, len(terms))
	hits := make([]string, 0, len(terms))
	var whereArgs, hitArgs []any
	for _, t := range terms {
		like := "%" + t + "%"
		where = append(where, haystack)
		whereArgs = append(whereArgs, like)
		hits = append(hits, "(CASE WHEN "+haystack+" THEN 1 ELSE 0 END)")
		hitArgs = append(hitArgs, like)
	}
	q := fmt.Sprintf(`SELECT url, title, summary, body, publication_date, patent_number
FROM prior_art
WHERE %s
ORDER BY (%s) DESC, url ASC
LIMIT ?`, strings.Join(where, " OR "), strings.Join(hits, " + "))
	args := append(append(whereArgs, hitArgs...), c.limit)

	var rows []corpusRow
	if err := c.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("corpus search: %w", err)
	}
	out := make([]RawCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, RawCandidate{
			Title:         r.Title,
			URL:           r.URL,
			Text:          r.Body,
			Summary:       r.Summary,
			PublishedDate: r.PublicationDate,
			PatentNumber:  r.PatentNumber,
		})
	}
	return out, nil
}

// Import upserts candidates keyed by URL and returns how many were written.
func (c *CorpusSource) Import(ctx context.Context, items []RawCandidate) (int, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n := 0
	for _, it := range items {
		if !it.usable() {
			continue
		}
		title := strings.TrimSpace(it.Title)
		_, err := tx.ExecContext(ctx, `INSERT INTO prior_art (url, title, summary, body, publication_date, patent_number, search_text)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	title = excluded.title,
	summary = excluded.summary,
	body = excluded.body,
	publication_date = excluded.publication_date,
	patent_number = excluded.patent_number,
	search_text = excluded.search_text`,
			strings.TrimSpace(it.URL), title, it.Summary, it.Text, it.PublishedDate, it.PatentNumber,
			searchText(title, it.Summary, it.Text))
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", it.URL, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *CorpusSource) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM prior_art")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func searchText(parts ...string) string {
	return strings.ToLower(strings.Join(parts, " "))
}

func corpusTerms(query string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'.,;:()[]`)
		if len(w) <= 3 {
			continue
		}
		if _, stop := corpusStopwords[w]; stop {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == corpusMaxTerms {
			break
		}
	}
	return out
}
