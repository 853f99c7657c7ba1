package pain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/pain")

var (
	// ErrNotFound is returned for an unknown or archived draft id.
	ErrNotFound = errors.New("pain draft not found")
	// ErrForbidden is returned when a draft belongs to another user.
	ErrForbidden = errors.New("pain draft belongs to another user")
)

const schema = `
CREATE TABLE IF NOT EXISTS pains (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    chat_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    segment TEXT NOT NULL DEFAULT '',
    problem TEXT NOT NULL DEFAULT '',
    jtbd TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '[]',
    metrics TEXT NOT NULL DEFAULT '{}',
    queries TEXT NOT NULL DEFAULT '[]',
    report TEXT NOT NULL DEFAULT '',
    landing TEXT NOT NULL DEFAULT '',
    archived INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pains_chat ON pains(chat_id, archived, status);
CREATE INDEX IF NOT EXISTS idx_pains_user ON pains(user_id, archived);
`

const columns = `id, user_id, chat_id, status, segment, problem, jtbd, keywords, metrics, queries, report, landing, created_at, updated_at`

// Store persists drafts in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the draft database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening pain database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating pain schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new draft in the draft status.
func (s *Store) Create(ctx context.Context, d Draft) (*Draft, error) {
	ctx, span := tracer.Start(ctx, "pain.create", trace.WithAttributes(hsotel.ChatID.String(d.ChatID)))
	defer span.End()

	if d.ID == "" {
		d.ID = "pain_" + uuid.New().String()[:12]
	}
	d.Status = StatusDraft
	d.Created = s.now()
	d.Updated = d.Created
	if d.Keywords == nil {
		d.Keywords = []string{}
	}
	if d.Metrics == nil {
		d.Metrics = map[string]float64{}
	}
	keywords, metrics, queries, err := encodeLists(d)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pains (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.ChatID, string(d.Status), d.Segment, d.Problem, d.JTBD,
		keywords, metrics, queries, d.Report, d.Landing, d.Created.UnixNano(), d.Updated.UnixNano())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("inserting pain draft: %w", err)
	}
	log.Info().Str("pain_id", d.ID).Str("chat_id", d.ChatID).Msg("pain_created")
	return &d, nil
}

// Get returns a non-archived draft.
func (s *Store) Get(ctx context.Context, id string) (*Draft, error) {
	drafts, err := s.query(ctx, `SELECT `+columns+` FROM pains WHERE id = ? AND archived = 0`, id)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &drafts[0], nil
}

// GetOwned returns the draft when it belongs to userID.
func (s *Store) GetOwned(ctx context.Context, userID, id string) (*Draft, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, id)
	}
	return d, nil
}

// ListByChat returns the chat's non-archived drafts, oldest first. A non-empty
// status filters on it.
func (s *Store) ListByChat(ctx context.Context, chatID string, status Status) ([]Draft, error) {
	q := `SELECT ` + columns + ` FROM pains WHERE chat_id = ? AND archived = 0`
	args := []any{chatID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	return s.query(ctx, q+` ORDER BY created_at ASC`, args...)
}

// ListByUser returns the user's non-archived drafts, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Draft, error) {
	return s.query(ctx, `SELECT `+columns+` FROM pains WHERE user_id = ? AND archived = 0 ORDER BY created_at DESC`, userID)
}

// Update applies a partial change and returns the stored draft.
func (s *Store) Update(ctx context.Context, id string, u Update) (*Draft, error) {
	ctx, span := tracer.Start(ctx, "pain.update", trace.WithAttributes(attribute.String("pain.id", id)))
	defer span.End()

	return s.mutate(ctx, id, func(d *Draft) { u.apply(d) })
}

// SetStatus moves the draft to status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) { d.Status = status })
}

// SetQueries stores generated research queries.
func (s *Store) SetQueries(ctx context.Context, id string, queries []Query) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) { d.Queries = queries })
}

// AttachDocument stores a generated HTML document in the slot doc.
func (s *Store) AttachDocument(ctx context.Context, id string, doc Document, html string) (*Draft, error) {
	return s.mutate(ctx, id, func(d *Draft) {
		if doc == DocumentLanding {
			d.Landing = html
			return
		}
		d.Report = html
	})
}

// Archive hides a draft from every listing.
func (s *Store) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pains SET archived = 1, updated_at = ? WHERE id = ? AND archived = 0`, s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("archiving pain draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// StaticFacts returns the chat's drafts as static memory items. With
// activeOnly set only drafts under validation are returned.
func (s *Store) StaticFacts(ctx context.Context, chatID string, activeOnly bool) ([]memory.Item, error) {
	status := Status("")
	if activeOnly {
		status = StatusValidation
	}
	drafts, err := s.ListByChat(ctx, chatID, status)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Item, len(drafts))
	for i, d := range drafts {
		out[i] = d.StaticItem()
	}
	return out, nil
}

// SubjectFacts returns the static facts of the given drafts. Unknown or
// archived ids are skipped.
func (s *Store) SubjectFacts(ctx context.Context, ids []string) ([]memory.Item, error) {
	out := make([]memory.Item, 0, len(ids))
	for _, id := range ids {
		d, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d.StaticItem())
	}
	return out, nil
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*Draft)) (*Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	drafts, err := scan(tx.QueryContext(ctx, `SELECT `+columns+` FROM pains WHERE id = ? AND archived = 0`, id))
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d := drafts[0]
	fn(&d)
	d.Updated = s.now()

	keywords, metrics, queries, err := encodeLists(d)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE pains SET status = ?, segment = ?, problem = ?, jtbd = ?, keywords = ?, metrics = ?, queries = ?,
		 report = ?, landing = ?, updated_at = ? WHERE id = ?`,
		string(d.Status), d.Segment, d.Problem, d.JTBD, keywords, metrics, queries, d.Report, d.Landing, d.Updated.UnixNano(), d.ID)
	if err != nil {
		return nil, fmt.Errorf("updating pain draft: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing pain draft: %w", err)
	}
	return &d, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Draft, error) {
	return scan(s.db.QueryContext(ctx, q, args...))
}

func scan(rows *sql.Rows, err error) ([]Draft, error) {
	if err != nil {
		return nil, fmt.Errorf("querying pain drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var d Draft
		var status, keywords, metrics, queries string
		var created, updated int64
		if err := rows.Scan(&d.ID, &d.UserID, &d.ChatID, &status, &d.Segment, &d.Problem, &d.JTBD,
			&keywords, &metrics, &queries, &d.Report, &d.Landing, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning pain draft: %w", err)
		}
		d.Status = Status(status)
		d.Created = time.Unix(0, created).UTC()
		d.Updated = time.Unix(0, updated).UTC()
		if err := json.Unmarshal([]byte(keywords), &d.Keywords); err != nil {
			return nil, fmt.Errorf("decoding keywords of %s: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(metrics), &d.Metrics); err != nil {
			return nil, fmt.Errorf("decoding metrics of %s: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(queries), &d.Queries); err != nil {
			return nil, fmt.Errorf("decoding queries of %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func encodeLists(d Draft) (keywords, metrics, queries string, err error) {
	k, err := json.Marshal(nonNil(d.Keywords))
	if err != nil {
		return "", "", "", fmt.Errorf("encoding keywords: %w", err)
	}
	m := d.Metrics
	if m == nil {
		m = map[string]float64{}
	}
	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding metrics: %w", err)
	}
	q := d.Queries
	if q == nil {
		q = []Query{}
	}
	qb, err := json.Marshal(q)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding queries: %w", err)
	}
	return string(k), string(mb), string(qb), nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
