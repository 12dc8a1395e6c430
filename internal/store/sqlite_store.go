// SQLite-backed Storer using ncruces/go-sqlite3 through database/sql.
// The sqlite-vec extension is registered on the same connection so the
// vector index can keep its embedding table in this database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SQLiteStore is the SQLite-backed content store.
// Safe for concurrent readers; writes are serialized by the mutex.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

const schema = `
-- Content nodes (append-only; one row per version)
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    uri TEXT NOT NULL,
    text TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT 'plain',
    rendered TEXT,
    title TEXT,
    author TEXT,
    created_at INTEGER NOT NULL,
    imported_at INTEGER DEFAULT 0,
    word_count INTEGER DEFAULT 0,
    language TEXT,
    tags TEXT,
    meta TEXT,
    source_type TEXT,
    adapter_id TEXT,
    source_id TEXT,
    batch_id TEXT,
    parent_id TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    prev_version_id TEXT,
    root_id TEXT NOT NULL,
    operation TEXT,
    operator TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_hash ON nodes(content_hash);
CREATE INDEX IF NOT EXISTS idx_nodes_root ON nodes(root_id);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);

-- Typed directed links
CREATE TABLE IF NOT EXISTS links (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    type TEXT NOT NULL,
    strength REAL DEFAULT 1.0,
    source_anchor TEXT,
    target_anchor TEXT,
    created_at INTEGER NOT NULL,
    created_by TEXT,
    meta TEXT
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

-- Quality side-table, written by the external scorer
CREATE TABLE IF NOT EXISTS quality (
    node_id TEXT PRIMARY KEY,
    authenticity REAL DEFAULT 0,
    necessity REAL DEFAULT 0,
    inflection REAL DEFAULT 0,
    voice REAL DEFAULT 0,
    overall REAL DEFAULT 0,
    stub_type TEXT,
    necessity_type TEXT
);
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle so the vector index can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Nodes
// =============================================================================

const nodeColumns = `id, content_hash, uri, text, format, rendered, title, author,
	created_at, imported_at, word_count, language, tags, meta,
	source_type, adapter_id, source_id, batch_id, parent_id,
	version, prev_version_id, root_id, operation, operator`

// PutNode inserts an immutable node. Defaults are filled in:
// version 1, root id = own id, content hash and word count from Text.
func (s *SQLiteStore) PutNode(node *ContentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertNode(s.db, node)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertNode(db execer, node *ContentNode) error {
	applyNodeDefaults(node)

	tagsJSON, metaJSON, err := encodeBags(node.Tags, node.Meta)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.ContentHash, node.URI, node.Text, string(node.Format), node.Rendered,
		node.Title, node.Author, node.CreatedAt, node.ImportedAt, node.WordCount,
		node.Language, tagsJSON, metaJSON,
		node.SourceType, node.AdapterID, node.SourceID, node.BatchID, node.ParentID,
		node.Version, node.PrevVersionID, node.RootID, node.Operation, node.Operator)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", node.ID, err)
	}
	return nil
}

// PutVersion appends a new version of existing content. The node must
// carry PrevVersionID; version number and root id are inherited, and a
// version-of link back to the superseded version is written in the same
// transaction.
func (s *SQLiteStore) PutVersion(node *ContentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.PrevVersionID == "" {
		return fmt.Errorf("version node %s has no prev version id", node.ID)
	}

	prev, err := s.getNode(node.PrevVersionID)
	if err != nil {
		return err
	}
	if prev == nil {
		return &ReferentialError{Op: "version", MissingID: node.PrevVersionID}
	}

	if node.Version == 0 {
		node.Version = prev.Version + 1
	}
	node.RootID = prev.RootID

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.insertNode(tx, node); err != nil {
		return err
	}

	link := &ContentLink{
		ID:        node.ID + ":version-of:" + prev.ID,
		SourceID:  node.ID,
		TargetID:  prev.ID,
		Type:      LinkVersionOf,
		Strength:  1.0,
		CreatedAt: node.ImportedAt,
		CreatedBy: node.Operator,
	}
	if err := insertLink(tx, link); err != nil {
		return err
	}

	return tx.Commit()
}

func applyNodeDefaults(node *ContentNode) {
	if node.ContentHash == "" {
		node.ContentHash = HashText(node.Text)
	}
	if node.WordCount == 0 {
		node.WordCount = CountWords(node.Text)
	}
	if node.Version == 0 {
		node.Version = 1
	}
	if node.RootID == "" {
		node.RootID = node.ID
	}
	if node.Format == "" {
		node.Format = FormatPlain
	}
}

func encodeBags(tags []string, meta map[string]any) (string, string, error) {
	tagsJSON := ""
	if len(tags) > 0 {
		b, err := json.Marshal(tags)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal tags: %w", err)
		}
		tagsJSON = string(b)
	}
	metaJSON := ""
	if len(meta) > 0 {
		if _, ok := meta["schemaVersion"]; !ok {
			meta["schemaVersion"] = MetaSchemaVersion
		}
		b, err := json.Marshal(meta)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal meta: %w", err)
		}
		metaJSON = string(b)
	}
	return tagsJSON, metaJSON, nil
}

// rowScanner lets scanNode work on both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*ContentNode, error) {
	var node ContentNode
	var format string
	var tagsJSON, metaJSON sql.NullString

	err := row.Scan(
		&node.ID, &node.ContentHash, &node.URI, &node.Text, &format, &node.Rendered,
		&node.Title, &node.Author, &node.CreatedAt, &node.ImportedAt, &node.WordCount,
		&node.Language, &tagsJSON, &metaJSON,
		&node.SourceType, &node.AdapterID, &node.SourceID, &node.BatchID, &node.ParentID,
		&node.Version, &node.PrevVersionID, &node.RootID, &node.Operation, &node.Operator,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	node.Format = Format(format)
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &node.Tags); err != nil {
			node.Tags = nil
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &node.Meta); err != nil {
			node.Meta = nil
		}
	}

	return &node, nil
}

// GetNode retrieves a node by ID. Missing ids return (nil, nil).
func (s *SQLiteStore) GetNode(id string) (*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getNode(id)
}

func (s *SQLiteStore) getNode(id string) (*ContentNode, error) {
	row := s.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	return scanNode(row)
}

// GetNodes retrieves many nodes at once; missing ids are omitted.
// Output order follows the input id order.
func (s *SQLiteStore) GetNodes(ids []string) ([]*ContentNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(`SELECT `+nodeColumns+` FROM nodes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*ContentNode, len(ids))
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		byID[node.ID] = node
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes := make([]*ContentNode, 0, len(byID))
	for _, id := range ids {
		if node, ok := byID[id]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// FindByHash returns all nodes whose text hashes to contentHash.
// Callers decide whether duplicates across URIs are distinct entities.
func (s *SQLiteStore) FindByHash(contentHash string) ([]*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+nodeColumns+` FROM nodes WHERE content_hash = ? ORDER BY id`, contentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNodes(rows)
}

// ListNodeVersions returns all versions sharing a root id, newest first.
func (s *SQLiteStore) ListNodeVersions(rootID string) ([]*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+nodeColumns+` FROM nodes WHERE root_id = ? ORDER BY version DESC`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNodes(rows)
}

// ForEachNode calls fn for every node in id order. Nodes are collected
// before fn runs so callbacks may issue store reads without nesting
// read locks; a nested RLock would deadlock behind a waiting writer.
func (s *SQLiteStore) ForEachNode(fn func(*ContentNode) error) error {
	s.mu.RLock()
	nodes, err := func() ([]*ContentNode, error) {
		rows, err := s.db.Query(`SELECT ` + nodeColumns + ` FROM nodes ORDER BY id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectNodes(rows)
	}()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, node := range nodes {
		if err := fn(node); err != nil {
			return err
		}
	}
	return nil
}

func collectNodes(rows *sql.Rows) ([]*ContentNode, error) {
	var nodes []*ContentNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// CountNodes returns the total number of nodes.
func (s *SQLiteStore) CountNodes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&count)
	return count, err
}

// =============================================================================
// Links
// =============================================================================

// PutLink inserts a directed link. Both endpoints must exist.
func (s *SQLiteStore) PutLink(link *ContentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEndpoints(link); err != nil {
		return err
	}
	return insertLink(s.db, link)
}

// PutBidirectionalLink inserts the forward and reverse links in one
// transaction so the pair is never half-written.
func (s *SQLiteStore) PutBidirectionalLink(forward, reverse *ContentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEndpoints(forward); err != nil {
		return err
	}
	if err := s.checkEndpoints(reverse); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertLink(tx, forward); err != nil {
		return err
	}
	if err := insertLink(tx, reverse); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) checkEndpoints(link *ContentLink) error {
	for _, id := range []string{link.SourceID, link.TargetID} {
		var one int
		err := s.db.QueryRow(`SELECT 1 FROM nodes WHERE id = ? LIMIT 1`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return &ReferentialError{Op: "link", MissingID: id}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func insertLink(db execer, link *ContentLink) error {
	if link.Strength == 0 {
		link.Strength = 1.0
	}

	srcAnchor, err := encodeAnchor(link.SourceAnchor)
	if err != nil {
		return err
	}
	tgtAnchor, err := encodeAnchor(link.TargetAnchor)
	if err != nil {
		return err
	}
	metaJSON := ""
	if len(link.Meta) > 0 {
		b, err := json.Marshal(link.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal link meta: %w", err)
		}
		metaJSON = string(b)
	}

	_, err = db.Exec(`
		INSERT INTO links (id, source_id, target_id, type, strength,
			source_anchor, target_anchor, created_at, created_by, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, link.ID, link.SourceID, link.TargetID, string(link.Type), link.Strength,
		srcAnchor, tgtAnchor, link.CreatedAt, link.CreatedBy, metaJSON)
	if err != nil {
		return fmt.Errorf("insert link %s: %w", link.ID, err)
	}
	return nil
}

func encodeAnchor(a *[2]int) (string, error) {
	if a == nil {
		return "", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to marshal anchor: %w", err)
	}
	return string(b), nil
}

const linkColumns = `id, source_id, target_id, type, strength,
	source_anchor, target_anchor, created_at, created_by, meta`

func scanLink(row rowScanner) (*ContentLink, error) {
	var link ContentLink
	var typ string
	var srcAnchor, tgtAnchor, metaJSON sql.NullString

	err := row.Scan(
		&link.ID, &link.SourceID, &link.TargetID, &typ, &link.Strength,
		&srcAnchor, &tgtAnchor, &link.CreatedAt, &link.CreatedBy, &metaJSON,
	)
	if err != nil {
		return nil, err
	}

	link.Type = LinkType(typ)
	link.SourceAnchor = decodeAnchor(srcAnchor)
	link.TargetAnchor = decodeAnchor(tgtAnchor)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &link.Meta); err != nil {
			link.Meta = nil
		}
	}
	return &link, nil
}

func decodeAnchor(s sql.NullString) *[2]int {
	if !s.Valid || s.String == "" {
		return nil
	}
	var a [2]int
	if err := json.Unmarshal([]byte(s.String), &a); err != nil {
		return nil
	}
	return &a
}

// LinksFrom returns outgoing links, optionally filtered by type.
// Results are ordered by link id so graph walks are deterministic.
func (s *SQLiteStore) LinksFrom(id string, types ...LinkType) ([]*ContentLink, error) {
	return s.queryLinks("source_id", id, types)
}

// LinksTo returns incoming links, optionally filtered by type.
func (s *SQLiteStore) LinksTo(id string, types ...LinkType) ([]*ContentLink, error) {
	return s.queryLinks("target_id", id, types)
}

func (s *SQLiteStore) queryLinks(column, id string, types []LinkType) ([]*ContentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + linkColumns + ` FROM links WHERE ` + column + ` = ?`
	args := []any{id}
	if len(types) > 0 {
		query += ` AND type IN (` + strings.Repeat("?,", len(types)-1) + "?)"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*ContentLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// CountLinks returns the total number of links.
func (s *SQLiteStore) CountLinks() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM links").Scan(&count)
	return count, err
}

// =============================================================================
// Quality side-table
// =============================================================================

// PutQuality upserts a quality record. Written by the external scorer;
// the retrieval core only reads.
func (s *SQLiteStore) PutQuality(q *ContentQuality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO quality (node_id, authenticity, necessity, inflection, voice,
			overall, stub_type, necessity_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			authenticity = excluded.authenticity,
			necessity = excluded.necessity,
			inflection = excluded.inflection,
			voice = excluded.voice,
			overall = excluded.overall,
			stub_type = excluded.stub_type,
			necessity_type = excluded.necessity_type
	`, q.NodeID, q.Authenticity, q.Necessity, q.Inflection, q.Voice,
		q.Overall, q.StubType, q.NecessityType)
	return err
}

// GetQuality retrieves the quality record for a node, or (nil, nil).
func (s *SQLiteStore) GetQuality(nodeID string) (*ContentQuality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var q ContentQuality
	err := s.db.QueryRow(`
		SELECT node_id, authenticity, necessity, inflection, voice,
			overall, stub_type, necessity_type
		FROM quality WHERE node_id = ?
	`, nodeID).Scan(
		&q.NodeID, &q.Authenticity, &q.Necessity, &q.Inflection, &q.Voice,
		&q.Overall, &q.StubType, &q.NecessityType,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// =============================================================================
// Maintenance
// =============================================================================

// DeleteEmbeddingsWithoutNodes removes embedding rows whose node has no
// store entry. The embeddings table is owned by the vector index but
// lives in this database; a store without one is a no-op.
func (s *SQLiteStore) DeleteEmbeddingsWithoutNodes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'embeddings'
	`).Scan(&one)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`
		DELETE FROM embeddings WHERE node_id NOT IN (SELECT id FROM nodes)
	`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
