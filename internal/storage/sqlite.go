package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for users, files, and conversations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "atlas.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Users ---

func (s *Store) CreateUser(email, apiToken string) (User, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO users (email, api_token, created_at) VALUES (?, ?, ?)`,
		email, apiToken, now.Format(time.RFC3339))
	if err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: email, APIToken: apiToken, CreatedAt: now}, nil
}

func (s *Store) GetUserByToken(apiToken string) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRow(`SELECT id, email, api_token, created_at FROM users WHERE api_token = ?`, apiToken).
		Scan(&u.ID, &u.Email, &u.APIToken, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return u, nil
}

// --- Files ---

const fileColumns = `id, user_id, storage_key, original_name, file_type, file_size, storage_url, storage_id, collection_id, uploaded_at, processed`

func scanFile(row interface{ Scan(...any) error }) (FileRecord, error) {
	var f FileRecord
	var uploadedAt string
	var processed int
	err := row.Scan(&f.ID, &f.UserID, &f.StorageKey, &f.OriginalName, &f.FileType, &f.FileSize,
		&f.StorageURL, &f.StorageID, &f.CollectionID, &uploadedAt, &processed)
	if err != nil {
		return FileRecord{}, err
	}
	f.Processed = processed != 0
	f.UploadedAt, err = time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return FileRecord{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	return f, nil
}

// CreateFile inserts a new file record and returns it with the assigned ID.
func (s *Store) CreateFile(f FileRecord) (FileRecord, error) {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO files (user_id, storage_key, original_name, file_type, file_size, storage_url, storage_id, collection_id, uploaded_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UserID, f.StorageKey, f.OriginalName, f.FileType, f.FileSize,
		f.StorageURL, f.StorageID, f.CollectionID, f.UploadedAt.UTC().Format(time.RFC3339), boolToInt(f.Processed))
	if err != nil {
		return FileRecord{}, fmt.Errorf("inserting file: %w", err)
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		return FileRecord{}, err
	}
	return f, nil
}

// GetFile returns the file with the given id if it is owned by userID.
func (s *Store) GetFile(id, userID int64) (FileRecord, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ? AND user_id = ?`, id, userID)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return FileRecord{}, ErrNotFound
	}
	return f, err
}

// GetFileByID returns a file regardless of owner. Used by the ingestion worker.
func (s *Store) GetFileByID(id int64) (FileRecord, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return FileRecord{}, ErrNotFound
	}
	return f, err
}

func (s *Store) ListFiles(userID int64) ([]FileRecord, error) {
	rows, err := s.db.Query(`SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY uploaded_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) DeleteFile(id, userID int64) error {
	res, err := s.db.Exec(`DELETE FROM files WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkFileProcessed(id int64) error {
	res, err := s.db.Exec(`UPDATE files SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnprocessedFileIDs returns ids of files whose indexing never completed,
// oldest first. The worker drains these at startup.
func (s *Store) ListUnprocessedFileIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM files WHERE processed = 0 ORDER BY uploaded_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Conversations ---

func (s *Store) CreateConversation(userID int64, title string) (Conversation, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO conversations (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, title, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) GetConversation(id, userID int64) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRow(`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

func (s *Store) ListConversations(userID int64) ([]Conversation, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListMessages(conversationID int64) ([]Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, role, content, sources, intent, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sources, intent sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &sources, &intent, &createdAt); err != nil {
			return nil, err
		}
		m.Sources = sources.String
		m.Intent = intent.String
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(id, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendExchange inserts the user and assistant messages of one query
// exchange in a single transaction and bumps the conversation timestamp.
func (s *Store) AppendExchange(conversationID int64, userMsg, assistantMsg Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning exchange transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, m := range []Message{userMsg, assistantMsg} {
		var sources, intent any
		if m.Sources != "" {
			sources = m.Sources
		}
		if m.Intent != "" {
			intent = m.Intent
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, role, content, sources, intent, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, m.Role, m.Content, sources, intent, now); err != nil {
			return fmt.Errorf("inserting %s message: %w", m.Role, err)
		}
	}

	if _, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return fmt.Errorf("updating conversation timestamp: %w", err)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
