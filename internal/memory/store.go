// Package memory stores profile, event and artifact memories in SQLite and
// answers budget-bounded searches over them. Full-text ranking uses FTS5 when
// the SQLite build has it and degrades to LIKE matching otherwise.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/memory")

var (
	// ErrStaticNotStored is returned for writes or searches of static items.
	ErrStaticNotStored = errors.New("static memory is not stored")
	// ErrMissingScope is returned when the scope lacks the owner of the kind.
	ErrMissingScope = errors.New("memory scope missing owner")
)

// searchCandidates caps how many rows a search ranks before budgeting.
const searchCandidates = 200

const schema = `
CREATE TABLE IF NOT EXISTS memory_items (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    chat_id TEXT NOT NULL DEFAULT '',
    pain_id TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    importance TEXT NOT NULL DEFAULT 'medium',
    token_cost INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_user ON memory_items(kind, user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_memory_chat ON memory_items(kind, chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_memory_pain ON memory_items(kind, pain_id, created_at);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
    content,
    content=memory_items,
    content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS memory_ai AFTER INSERT ON memory_items BEGIN
    INSERT INTO memory_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memory_ad AFTER DELETE ON memory_items BEGIN
    INSERT INTO memory_fts(memory_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;
`

const importanceOrder = `CASE m.importance WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`

// Entry is an item together with the owner it is written for.
type Entry struct {
	Item
	Scope Scope
}

// Store persists memory items in SQLite.
type Store struct {
	db      *sql.DB
	hasFTS5 bool
	now     func() time.Time
}

// NewStore opens (or creates) the memory database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating memory schema: %w", err)
	}

	hasFTS5 := true
	if _, err := db.ExecContext(context.Background(), ftsSchema); err != nil {
		hasFTS5 = false
	}
	return &Store{db: db, hasFTS5: hasFTS5, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FullText reports whether search uses the FTS5 index. Without it search
// falls back to LIKE matching.
func (s *Store) FullText() bool { return s.hasFTS5 }

// Put writes entries in one transaction. IDs, timestamps and token costs are
// filled in when missing. The stored items are returned in input order.
func (s *Store) Put(ctx context.Context, entries ...Entry) ([]Item, error) {
	ctx, span := tracer.Start(ctx, "memory.put", trace.WithAttributes(attribute.Int("memory.entries", len(entries))))
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]Item, 0, len(entries))
	for _, e := range entries {
		if err := validateScope(e.Kind, e.Scope); err != nil {
			span.RecordError(err)
			return nil, err
		}
		it := s.prepare(e.Item)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_items (id, kind, type, user_id, chat_id, pain_id, content, importance, token_cost, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, string(it.Kind), it.Type, e.Scope.UserID, e.Scope.ChatID, e.Scope.PainID,
			it.Content, string(it.Importance), it.TokenCost, it.CreatedAt.UnixNano())
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("inserting memory item: %w", err)
		}
		out = append(out, it)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing memory items: %w", err)
	}

	writesTotal.Add(ctx, int64(len(out)))
	return out, nil
}

func (s *Store) prepare(it Item) Item {
	if it.ID == "" {
		it.ID = "mem_" + uuid.New().String()[:12]
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
	}
	if it.TokenCost == 0 {
		it.TokenCost = budget.EstimateTokens(it.Content)
	}
	if it.Importance == "" {
		it.Importance = ImportanceMedium
	}
	return it
}

// Search returns items of kind k for the scope, ranked by relevance to query
// (or by importance then recency when query has no searchable words), and
// admitted greedily so their total cost never exceeds limit.
func (s *Store) Search(ctx context.Context, k Kind, query string, limit int, scope Scope) ([]Item, error) {
	ctx, span := tracer.Start(ctx, "memory.search",
		trace.WithAttributes(
			hsotel.MemoryKind.String(string(k)),
			hsotel.TokenBudget.Int(limit),
			attribute.Bool("memory.recent_window", !scope.Since.IsZero()),
		))
	defer span.End()

	if err := validateScope(k, scope); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	ownerCol, owner := ownerColumn(k, scope)
	where := `m.kind = ? AND m.` + ownerCol + ` = ?`
	args := []any{string(k), owner}
	if !scope.Since.IsZero() {
		where += ` AND m.created_at >= ?`
		args = append(args, scope.Since.UnixNano())
	}

	var q string
	match := ftsQuery(query)
	switch {
	case match == "":
		q = `SELECT m.id, m.kind, m.type, m.content, m.importance, m.token_cost, m.created_at
		     FROM memory_items m WHERE ` + where + `
		     ORDER BY ` + importanceOrder + `, m.created_at DESC LIMIT ?`
	case s.hasFTS5:
		q = `SELECT m.id, m.kind, m.type, m.content, m.importance, m.token_cost, m.created_at
		     FROM memory_items m JOIN memory_fts f ON m.rowid = f.rowid
		     WHERE f.memory_fts MATCH ? AND ` + where + `
		     ORDER BY f.rank, ` + importanceOrder + ` LIMIT ?`
		args = append([]any{match}, args...)
	default:
		like, likeArgs := likeClause(query)
		q = `SELECT m.id, m.kind, m.type, m.content, m.importance, m.token_cost, m.created_at
		     FROM memory_items m WHERE ` + where + ` AND (` + like + `)
		     ORDER BY ` + importanceOrder + `, m.created_at DESC LIMIT ?`
		args = append(args, likeArgs...)
	}
	args = append(args, searchCandidates)

	items, err := s.query(ctx, q, args...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	admitted := budget.Admit(items, limit, Cost)

	readsTotal.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int("memory.candidates", len(items)),
		attribute.Int("memory.returned", len(admitted)),
		attribute.Int("memory.tokens", budget.Total(admitted, Cost)),
	)
	return admitted, nil
}

// List returns the newest items of kind k for the scope.
func (s *Store) List(ctx context.Context, k Kind, scope Scope, limit int) ([]Item, error) {
	if err := validateScope(k, scope); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	ownerCol, owner := ownerColumn(k, scope)
	return s.query(ctx,
		`SELECT m.id, m.kind, m.type, m.content, m.importance, m.token_cost, m.created_at
		 FROM memory_items m WHERE m.kind = ? AND m.`+ownerCol+` = ?
		 ORDER BY m.created_at DESC LIMIT ?`,
		string(k), owner, limit)
}

// PurgeExpired deletes items older than retentionDays and returns how many
// were removed.
func (s *Store) PurgeExpired(ctx context.Context, retentionDays int) (int64, error) {
	ctx, span := tracer.Start(ctx, "memory.purge_expired",
		trace.WithAttributes(attribute.Int("retention_days", retentionDays)))
	defer span.End()

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purging expired memory items: %w", err)
	}
	n, _ := res.RowsAffected()
	span.SetAttributes(attribute.Int64("memory.purged", n))
	return n, nil
}

// Count returns the number of stored items.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memory items: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memory items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var kind, importance string
		var created int64
		if err := rows.Scan(&it.ID, &kind, &it.Type, &it.Content, &importance, &it.TokenCost, &created); err != nil {
			return nil, fmt.Errorf("scanning memory item: %w", err)
		}
		it.Kind = Kind(kind)
		it.Importance = Importance(importance)
		it.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

func validateScope(k Kind, scope Scope) error {
	if k == KindStatic {
		return ErrStaticNotStored
	}
	if _, owner := ownerColumn(k, scope); owner == "" {
		return fmt.Errorf("%w: %s memory", ErrMissingScope, k)
	}
	return nil
}

func ownerColumn(k Kind, scope Scope) (string, string) {
	switch k {
	case KindProfile:
		return "user_id", scope.UserID
	case KindEvent:
		return "chat_id", scope.ChatID
	case KindArtifact:
		return "pain_id", scope.PainID
	}
	return "", ""
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// ftsQuery turns free text into an FTS5 OR query of quoted words, so user
// punctuation never reaches the FTS parser.
func ftsQuery(text string) string {
	words := wordRe.FindAllString(strings.ToLower(text), 16)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " OR ")
}

func likeClause(text string) (string, []any) {
	words := wordRe.FindAllString(strings.ToLower(text), 16)
	parts := make([]string, len(words))
	args := make([]any, len(words))
	for i, w := range words {
		parts[i] = `LOWER(m.content) LIKE ?`
		args[i] = "%" + w + "%"
	}
	return strings.Join(parts, " OR "), args
}
