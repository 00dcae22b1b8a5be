// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Conversation/entry/content persistence with encrypted text columns

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite. Text columns
// (titles, turn text, content URLs) are sealed with the provided Encryptor.
type SQLiteStore struct {
	db     *sql.DB
	enc    *Encryptor
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a store at the given path. Use ":memory:"
// for tests. Parent directories are created if needed.
func NewSQLiteStore(path string, enc *Encryptor, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if enc == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Foreign keys drive the ON DELETE CASCADE from conversations to
	// entries and associated content.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, enc: enc, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			uuid TEXT PRIMARY KEY,
			title BLOB NOT NULL,
			model_key TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			trimmed_tokens INTEGER NOT NULL DEFAULT 0,
			has_content INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS conversation_entries (
			uuid TEXT PRIMARY KEY,
			conversation_uuid TEXT NOT NULL,
			role TEXT NOT NULL,
			text BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_uuid)
				REFERENCES conversations(uuid) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_entries_conversation_created
			ON conversation_entries(conversation_uuid, created_at);

		CREATE TABLE IF NOT EXISTS associated_content (
			uuid TEXT PRIMARY KEY,
			conversation_uuid TEXT NOT NULL,
			title BLOB NOT NULL,
			url BLOB NOT NULL,
			content_used_percentage INTEGER NOT NULL DEFAULT 100,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_uuid)
				REFERENCES conversations(uuid) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_content_conversation
			ON associated_content(conversation_uuid);

		CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			shortcut TEXT NOT NULL,
			prompt TEXT NOT NULL,
			model_key TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// LoadAll returns metadata for every persisted conversation. Rows whose title
// fails to decrypt are skipped rather than failing the whole load.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, title, model_key, created_at, updated_at,
		       total_tokens, trimmed_tokens, has_content
		FROM conversations
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var (
			conv       Conversation
			titleBlob  []byte
			hasContent int
		)
		if err := rows.Scan(&conv.UUID, &titleBlob, &conv.ModelKey,
			&conv.CreatedAt, &conv.UpdatedAt,
			&conv.TotalTokens, &conv.TrimmedTokens, &hasContent); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		title, err := s.enc.Open(titleBlob)
		if err != nil {
			s.logger.Error("skipping undecryptable conversation row",
				"uuid", conv.UUID, "error", err)
			continue
		}
		conv.Title = title
		conv.HasContent = hasContent != 0
		out = append(out, &conv)
	}
	return out, rows.Err()
}

// LoadArchive returns the full turn history and associated content for one
// conversation. Returns ErrNotFound if the conversation does not exist.
func (s *SQLiteStore) LoadArchive(ctx context.Context, uuid string) (*Archive, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE uuid = ?`, uuid).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	archive := &Archive{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, role, text, created_at
		FROM conversation_entries
		WHERE conversation_uuid = ?
		ORDER BY created_at ASC, uuid ASC`, uuid)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry    Entry
			textBlob []byte
		)
		if err := rows.Scan(&entry.UUID, &entry.Role, &textBlob, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		text, err := s.enc.Open(textBlob)
		if err != nil {
			s.logger.Error("skipping undecryptable entry row",
				"conversation_uuid", uuid, "entry_uuid", entry.UUID, "error", err)
			continue
		}
		entry.ConversationUUID = uuid
		entry.Text = text
		archive.Entries = append(archive.Entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	contentRows, err := s.db.QueryContext(ctx, `
		SELECT uuid, title, url, content_used_percentage, created_at
		FROM associated_content
		WHERE conversation_uuid = ?
		ORDER BY created_at ASC`, uuid)
	if err != nil {
		return nil, fmt.Errorf("querying associated content: %w", err)
	}
	defer contentRows.Close()

	for contentRows.Next() {
		var (
			c         Content
			titleBlob []byte
			urlBlob   []byte
		)
		if err := contentRows.Scan(&c.UUID, &titleBlob, &urlBlob,
			&c.ContentUsedPercentage, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning associated content: %w", err)
		}
		title, terr := s.enc.Open(titleBlob)
		url, uerr := s.enc.Open(urlBlob)
		if terr != nil || uerr != nil {
			s.logger.Error("skipping undecryptable content row",
				"conversation_uuid", uuid, "content_uuid", c.UUID)
			continue
		}
		c.ConversationUUID = uuid
		c.Title = title
		c.URL = url
		archive.Contents = append(archive.Contents, &c)
	}
	return archive, contentRows.Err()
}

// Save upserts the conversation header and replaces its turn history and
// associated content rows in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, conv *Conversation, entries []*Entry, contents []*Content) error {
	titleBlob, err := s.enc.Seal(conv.Title)
	if err != nil {
		return fmt.Errorf("sealing title: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	hasContent := 0
	if conv.HasContent {
		hasContent = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations
			(uuid, title, model_key, created_at, updated_at,
			 total_tokens, trimmed_tokens, has_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			title = excluded.title,
			model_key = excluded.model_key,
			updated_at = excluded.updated_at,
			total_tokens = excluded.total_tokens,
			trimmed_tokens = excluded.trimmed_tokens,
			has_content = excluded.has_content`,
		conv.UUID, titleBlob, conv.ModelKey, conv.CreatedAt, conv.UpdatedAt,
		conv.TotalTokens, conv.TrimmedTokens, hasContent); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_entries WHERE conversation_uuid = ?`, conv.UUID); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}
	for _, entry := range entries {
		textBlob, err := s.enc.Seal(entry.Text)
		if err != nil {
			return fmt.Errorf("sealing entry text: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_entries
				(uuid, conversation_uuid, role, text, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			entry.UUID, conv.UUID, entry.Role, textBlob, entry.CreatedAt); err != nil {
			return fmt.Errorf("inserting entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM associated_content WHERE conversation_uuid = ?`, conv.UUID); err != nil {
		return fmt.Errorf("clearing associated content: %w", err)
	}
	for _, c := range contents {
		titleBlob, terr := s.enc.Seal(c.Title)
		if terr != nil {
			return fmt.Errorf("sealing content title: %w", terr)
		}
		urlBlob, uerr := s.enc.Seal(c.URL)
		if uerr != nil {
			return fmt.Errorf("sealing content url: %w", uerr)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO associated_content
				(uuid, conversation_uuid, title, url, content_used_percentage, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.UUID, conv.UUID, titleBlob, urlBlob, c.ContentUsedPercentage, c.CreatedAt); err != nil {
			return fmt.Errorf("inserting associated content: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateMetadata updates only the conversation header (title, tokens,
// timestamps), leaving turn history and content rows untouched. A missing
// conversation returns ErrNotFound.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, conv *Conversation) error {
	titleBlob, err := s.enc.Seal(conv.Title)
	if err != nil {
		return fmt.Errorf("sealing title: %w", err)
	}
	hasContent := 0
	if conv.HasContent {
		hasContent = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET title = ?, model_key = ?, updated_at = ?,
		    total_tokens = ?, trimmed_tokens = ?, has_content = ?
		WHERE uuid = ?`,
		titleBlob, conv.ModelKey, conv.UpdatedAt,
		conv.TotalTokens, conv.TrimmedTokens, hasContent, conv.UUID)
	if err != nil {
		return fmt.Errorf("updating conversation metadata: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation and (via cascade) its entries and content.
func (s *SQLiteStore) Delete(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// rangeClause builds a WHERE fragment over column for an optional time range.
func rangeClause(column string, begin, end time.Time) (string, []any) {
	clause := ""
	var args []any
	if !begin.IsZero() {
		clause += " AND " + column + " >= ?"
		args = append(args, begin)
	}
	if !end.IsZero() {
		clause += " AND " + column + " <= ?"
		args = append(args, end)
	}
	return clause, args
}

// DeleteAllInRange removes conversations whose last update falls within the
// given time range. Zero times leave that side unbounded.
func (s *SQLiteStore) DeleteAllInRange(ctx context.Context, begin, end time.Time) error {
	clause, args := rangeClause("updated_at", begin, end)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE 1=1`+clause, args...)
	if err != nil {
		return fmt.Errorf("deleting conversations in range: %w", err)
	}
	return nil
}

// DeleteContentInRange removes associated web-content rows created within the
// given range and clears the has_content flag on conversations left without
// content. Turn text is untouched.
func (s *SQLiteStore) DeleteContentInRange(ctx context.Context, begin, end time.Time) error {
	clause, args := rangeClause("created_at", begin, end)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM associated_content WHERE 1=1`+clause, args...); err != nil {
		return fmt.Errorf("deleting associated content in range: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET has_content = 0
		WHERE uuid NOT IN (SELECT DISTINCT conversation_uuid FROM associated_content)`); err != nil {
		return fmt.Errorf("clearing has_content flags: %w", err)
	}
	return tx.Commit()
}

// ListSkills returns all stored skills ordered by shortcut.
func (s *SQLiteStore) ListSkills(ctx context.Context) ([]*Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shortcut, prompt, model_key, created_at, updated_at
		FROM skills ORDER BY shortcut ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying skills: %w", err)
	}
	defer rows.Close()

	var out []*Skill
	for rows.Next() {
		var skill Skill
		if err := rows.Scan(&skill.ID, &skill.Shortcut, &skill.Prompt,
			&skill.ModelKey, &skill.CreatedAt, &skill.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning skill: %w", err)
		}
		out = append(out, &skill)
	}
	return out, rows.Err()
}

// CreateSkill inserts a new skill.
func (s *SQLiteStore) CreateSkill(ctx context.Context, skill *Skill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (id, shortcut, prompt, model_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		skill.ID, skill.Shortcut, skill.Prompt, skill.ModelKey,
		skill.CreatedAt, skill.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting skill: %w", err)
	}
	return nil
}

// UpdateSkill updates an existing skill. Returns ErrSkillNotFound if the id
// does not exist.
func (s *SQLiteStore) UpdateSkill(ctx context.Context, skill *Skill) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE skills SET shortcut = ?, prompt = ?, model_key = ?, updated_at = ?
		WHERE id = ?`,
		skill.Shortcut, skill.Prompt, skill.ModelKey, skill.UpdatedAt, skill.ID)
	if err != nil {
		return fmt.Errorf("updating skill: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSkillNotFound
	}
	return nil
}

// DeleteSkill removes a skill. Returns ErrSkillNotFound if the id does not
// exist.
func (s *SQLiteStore) DeleteSkill(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting skill: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSkillNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
