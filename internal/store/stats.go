package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string       `json:"db_path"`
	DBSizeBytes    int64        `json:"db_size_bytes"`
	Identity       string       `json:"identity,omitempty"`
	CachedDatasets int          `json:"cached_datasets"`
	CatalogAt      string       `json:"catalog_fetched_at,omitempty"`
	TotalMessages  int          `json:"total_messages"`
	Sessions       int          `json:"sessions"`
	Owners         []OwnerStats `json:"owners"`
}

// OwnerStats holds per-owner counts from the cached catalog.
type OwnerStats struct {
	Owner    string `json:"owner"`
	Datasets int    `json:"datasets"`
	Rows     int    `json:"rows"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	st.Identity, _ = s.Get(ctx, IdentityKey)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&st.CachedDatasets)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(fetched_at), '') FROM datasets`).Scan(&st.CatalogAt)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.TotalMessages)
	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM messages`).Scan(&st.Sessions)

	owners, err := s.Owners(ctx)
	if err != nil {
		return st, err
	}
	st.Owners = owners
	return st, nil
}

// Owners returns per-owner dataset counts from the cached catalog.
func (s *SQLiteStore) Owners(ctx context.Context) ([]OwnerStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(user_id, ''), COUNT(*) AS cnt, COALESCE(SUM(row_count), 0)
		FROM datasets
		GROUP BY COALESCE(user_id, '') ORDER BY cnt DESC, 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []OwnerStats
	for rows.Next() {
		var o OwnerStats
		if err := rows.Scan(&o.Owner, &o.Datasets, &o.Rows); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}
