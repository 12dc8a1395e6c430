package vector

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

const embeddingsSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	node_id    TEXT NOT NULL,
	resolution INTEGER NOT NULL,
	dim        INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	PRIMARY KEY (node_id, resolution)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_resolution ON embeddings(resolution);
`

// SQLiteIndex persists embeddings in the content database and ranks
// candidates with the sqlite-vec vec_distance_cosine function. It is
// normally constructed over the same *sql.DB as the SQLiteStore so that
// embeddings live and die with their nodes.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex prepares the embeddings table on db.
func NewSQLiteIndex(db *sql.DB) (*SQLiteIndex, error) {
	if _, err := db.Exec(embeddingsSchema); err != nil {
		return nil, fmt.Errorf("create embeddings schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Store upserts the embedding for (id, res).
func (x *SQLiteIndex) Store(id string, res store.Resolution, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("store embedding %s: empty vector", id)
	}

	_, err := x.db.Exec(`
		INSERT INTO embeddings (node_id, resolution, dim, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id, resolution) DO UPDATE SET
			dim = excluded.dim,
			vector = excluded.vector`,
		id, int(res), len(vec), encodeVector(vec))
	if err != nil {
		return fmt.Errorf("store embedding %s: %w", id, err)
	}
	return nil
}

// HasEmbedding reports whether (id, res) already has a stored vector.
func (x *SQLiteIndex) HasEmbedding(id string, res store.Resolution) (bool, error) {
	var n int
	err := x.db.QueryRow(
		`SELECT COUNT(*) FROM embeddings WHERE node_id = ? AND resolution = ?`,
		id, int(res)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check embedding %s: %w", id, err)
	}
	return n > 0, nil
}

// Search returns the closest embeddings to query by cosine distance.
// Rows whose dimension differs from the query are excluded rather than
// erroring, so indexes surviving an embedding-model change stay usable.
func (x *SQLiteIndex) Search(query []float32, opts SearchOptions) ([]Hit, error) {
	if len(query) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	q := `
		SELECT node_id, resolution, vec_distance_cosine(vector, ?) AS distance
		FROM embeddings
		WHERE dim = ?`
	args := []any{encodeVector(query), len(query)}
	if opts.Resolution != nil {
		q += ` AND resolution = ?`
		args = append(args, int(*opts.Resolution))
	}
	q += ` ORDER BY distance ASC, node_id ASC`

	rows, err := x.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id       string
			res      int
			distance float64
		)
		if err := rows.Scan(&id, &res, &distance); err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		if opts.AllowIDs != nil && !opts.AllowIDs[id] {
			continue
		}
		sim := 1 - distance
		if sim < opts.MinScore {
			continue
		}
		hits = append(hits, Hit{ID: id, Resolution: store.Resolution(res), Similarity: sim})
		if len(hits) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	sortHits(hits)
	return hits, nil
}

// Count returns the number of stored embeddings at res.
func (x *SQLiteIndex) Count(res store.Resolution) (int, error) {
	var n int
	err := x.db.QueryRow(
		`SELECT COUNT(*) FROM embeddings WHERE resolution = ?`, int(res)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// sortHits orders by similarity descending, then id ascending for
// deterministic ties.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
}
