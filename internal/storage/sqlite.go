package storage

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink mirrors page records into a SQLite database
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteSink opens/creates the database at dbPath and initializes the schema
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)

	sink := &SQLiteSink{db: db}

	if err := sink.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sink, nil
}

// initSchema creates tables and indices if they don't exist
func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		page_id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		depth INTEGER NOT NULL,
		title TEXT NOT NULL,
		status INTEGER NOT NULL,
		recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_depth ON pages(depth);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record inserts a page row; a URL already present from an earlier run is left untouched
func (s *SQLiteSink) Record(rec PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO pages (url, depth, title, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`, rec.URL, rec.Depth, rec.TitleOrDefault(), rec.Status)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// GetPage retrieves a page by URL, returns nil if not found
func (s *SQLiteSink) GetPage(url string) (*PageRecord, error) {
	var rec PageRecord
	err := s.db.QueryRow(`
		SELECT url, depth, title, status
		FROM pages
		WHERE url = ?
	`, url).Scan(&rec.URL, &rec.Depth, &rec.Title, &rec.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	return &rec, nil
}

// ListPages returns all pages in insertion order
func (s *SQLiteSink) ListPages() ([]PageRecord, error) {
	rows, err := s.db.Query(`
		SELECT url, depth, title, status
		FROM pages
		ORDER BY page_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var rec PageRecord
		if err := rows.Scan(&rec.URL, &rec.Depth, &rec.Title, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pages: %w", err)
	}

	return pages, nil
}

// Close closes the database connection
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
