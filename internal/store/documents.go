package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is a file accepted by an upload set
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	SetName    string    `json:"set_name"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	Sheets     []string  `json:"sheets"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// CreateDocument stores doc, assigning its ID and upload time when unset
func (db *DB) CreateDocument(doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Sheets == nil {
		doc.Sheets = []string{}
	}

	sheets, err := json.Marshal(doc.Sheets)
	if err != nil {
		return fmt.Errorf("failed to encode sheets: %w", err)
	}

	query := `
		INSERT INTO documents (id, filename, set_name, size, checksum, sheets, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query, doc.ID, doc.Filename, doc.SetName, doc.Size, doc.Checksum, string(sheets), doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to record document %s: %w", doc.Filename, err)
	}
	return nil
}

// GetDocument retrieves a document by ID
func (db *DB) GetDocument(id string) (*Document, error) {
	query := `
		SELECT id, filename, set_name, size, checksum, sheets, uploaded_at
		FROM documents
		WHERE id = ?
	`
	doc, err := scanDocument(db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// ListDocuments returns documents newest first; limit <= 0 means no limit
func (db *DB) ListDocuments(limit int) ([]*Document, error) {
	query := `
		SELECT id, filename, set_name, size, checksum, sheets, uploaded_at
		FROM documents
		ORDER BY uploaded_at DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc    Document
		sheets string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.SetName, &doc.Size, &doc.Checksum, &sheets, &doc.UploadedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sheets), &doc.Sheets); err != nil {
		return nil, fmt.Errorf("corrupt sheets for document %s: %w", doc.ID, err)
	}
	return &doc, nil
}
