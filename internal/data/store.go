package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/data/migrations"
)

// Timestamps are stored as fixed-width UTC text so that lexical order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the relational conversation and profile store.
// It implements repo.ConversationRepo and repo.ProfileRepo.
type Store struct {
	db     *sql.DB
	driver string
}

var (
	_ repo.ConversationRepo = (*Store)(nil)
	_ repo.ProfileRepo      = (*Store)(nil)
)

// OpenDB opens the database for driver without running migrations
func OpenDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create db directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// a single connection serializes writers, including log transactions
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
		return db, nil
	case DriverPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewStore opens the database and applies pending migrations
func NewStore(driver, dsn string) (*Store, error) {
	db, err := OpenDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeLog(l domain.ConversationLog) (sql.NullString, error) {
	if l.Shape() == domain.LogShapeEmpty {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// decodeLog reads a stored log; plain text that is not JSON is a legacy transcript
func decodeLog(ns sql.NullString) domain.ConversationLog {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return domain.ConversationLog{}
	}
	var l domain.ConversationLog
	if err := json.Unmarshal([]byte(ns.String), &l); err != nil {
		return domain.NewTranscriptLog(ns.String)
	}
	return l
}

const conversationColumns = `id, user_id, remote_jid, name, group_jid, log, priority, context, analyzed_at, created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		c                   domain.Conversation
		group, log, ctxText sql.NullString
		analyzed            sql.NullString
		created, modified   string
		priority            string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.RemoteJID, &c.Name, &group, &log, &priority, &ctxText, &analyzed, &created, &modified); err != nil {
		return nil, err
	}
	c.Group = group.String
	c.Log = decodeLog(log)
	c.Priority = domain.ParsePriority(priority)
	c.Context = ctxText.String

	var err error
	if c.AnalyzedAt, err = scanTime(analyzed); err != nil {
		return nil, fmt.Errorf("failed to parse analyzed_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if c.ModifiedAt, err = parseTime(modified); err != nil {
		return nil, fmt.Errorf("failed to parse modified_at: %w", err)
	}
	return &c, nil
}

func (s *Store) queryConversations(ctx context.Context, query string, args ...any) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) getConversation(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, s.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// FindByContact returns the conversation for (user, contact)
func (s *Store) FindByContact(ctx context.Context, userID, remoteJID string) (*domain.Conversation, error) {
	return s.getConversation(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? AND remote_jid = ?`,
		userID, remoteJID)
}

// Get returns a conversation by id
func (s *Store) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

// Create inserts a conversation; a duplicate (user, contact) yields repo.ErrConflict
func (s *Store) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.ModifiedAt.IsZero() {
		conv.ModifiedAt = conv.CreatedAt
	}
	if conv.Priority == "" {
		conv.Priority = domain.PriorityNone
	}
	log, err := encodeLog(conv.Log)
	if err != nil {
		return fmt.Errorf("failed to encode log: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, remote_jid) DO NOTHING
	`),
		conv.ID, conv.UserID, conv.RemoteJID, conv.Name, nullString(conv.Group), log,
		string(conv.Priority), nullString(conv.Context), nullTime(conv.AnalyzedAt),
		formatTime(conv.CreatedAt), formatTime(conv.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	if n == 0 {
		return repo.ErrConflict
	}
	return nil
}

// UpdateLog rewrites the log inside a transaction so concurrent appends are serialized
func (s *Store) UpdateLog(ctx context.Context, id string, fn repo.LogMutator, modifiedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT log FROM conversations WHERE id = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var current sql.NullString
	err = tx.QueryRowContext(ctx, s.rebind(query), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}

	next, err := encodeLog(fn(decodeLog(current)))
	if err != nil {
		return fmt.Errorf("failed to encode log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE conversations SET log = ?, modified_at = ? WHERE id = ?`),
		next, formatTime(modifiedAt), id); err != nil {
		return fmt.Errorf("failed to update log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log update: %w", err)
	}
	return nil
}

// ListStale returns conversations that need classification, newest first
func (s *Store) ListStale(ctx context.Context, userID, excludeJID string, limit int) ([]*domain.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND remote_jid <> ?
		  AND (analyzed_at IS NULL OR modified_at > analyzed_at)
		ORDER BY modified_at DESC
		LIMIT ?
	`, userID, excludeJID, limit)
}

// SaveClassification stores the classifier verdict unless the log moved on
// after the classified snapshot was read
func (s *Store) SaveClassification(ctx context.Context, id string, seen time.Time, priority domain.Priority, rationale string, analyzedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE conversations SET priority = ?, context = ?, analyzed_at = ?
		WHERE id = ? AND modified_at = ?
	`), string(priority), nullString(rationale), formatTime(analyzedAt), id, formatTime(seen))
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return repo.ErrStale
}

// ListDigestCandidates returns classified conversations worth a digest line
func (s *Store) ListDigestCandidates(ctx context.Context, userID, excludeJID string, limit int) ([]*domain.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND remote_jid <> ?
		  AND priority IN (?, ?)
		  AND context IS NOT NULL AND context <> ''
		ORDER BY analyzed_at DESC
		LIMIT ?
	`, userID, excludeJID, string(domain.PriorityToday), string(domain.PriorityUrgent), limit)
}

// DeleteBelowPriority removes low priority conversations
func (s *Store) DeleteBelowPriority(ctx context.Context, userID string, below domain.Priority, olderThan *time.Time) (int64, error) {
	query := `DELETE FROM conversations WHERE user_id = ? AND priority < ?`
	args := []any{userID, string(below)}
	if olderThan != nil {
		query += ` AND modified_at < ?`
		args = append(args, formatTime(*olderThan))
	}
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	return n, nil
}
