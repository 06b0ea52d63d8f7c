package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"janitor/internal/infrastructure"
	"janitor/internal/metrics"
	"janitor/internal/store"
	"janitor/internal/uploads"
)

// DocumentRepository persists document records
type DocumentRepository interface {
	CreateDocument(doc *store.Document) error
	GetDocument(id string) (*store.Document, error)
	ListDocuments(limit int) ([]*store.Document, error)
}

// DocumentService stores uploads in one upload set and records them
type DocumentService struct {
	set     *uploads.Set
	docs    DocumentRepository
	metrics *metrics.Set
	logger  *slog.Logger
}

// NewDocumentService creates a document service for set. m may be nil.
func NewDocumentService(set *uploads.Set, docs DocumentRepository, m *metrics.Set, logger *slog.Logger) *DocumentService {
	return &DocumentService{
		set:     set,
		docs:    docs,
		metrics: m,
		logger:  infrastructure.WithComponent(logger, "document_service").With(slog.String("set", set.Name)),
	}
}

// Set returns the upload set documents are saved to
func (s *DocumentService) Set() *uploads.Set {
	return s.set
}

// Upload saves src as filename and records it. Spreadsheets get their
// sheet names recorded; an unreadable workbook is still accepted.
func (s *DocumentService) Upload(ctx context.Context, src io.Reader, filename string) (*store.Document, error) {
	saved, err := s.set.Save(src, filename)
	if errors.Is(err, uploads.ErrNotAllowed) {
		s.logger.InfoContext(ctx, "upload rejected", slog.String("filename", filename))
		return nil, ErrUploadNotAllowed
	}
	if err != nil {
		return nil, err
	}

	sheets, err := uploads.SheetNames(saved.Path)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read workbook",
			slog.String("filename", saved.Name),
			slog.String("error", err.Error()))
	}

	doc := &store.Document{
		Filename: saved.Name,
		SetName:  s.set.Name,
		Size:     saved.Size,
		Checksum: saved.Checksum,
		Sheets:   sheets,
	}
	if err := s.docs.CreateDocument(doc); err != nil {
		os.Remove(saved.Path)
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	if s.metrics != nil {
		if err := s.metrics.Uploads.Inc(s.set.Name); err != nil {
			s.logger.WarnContext(ctx, "failed to update metrics", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "document uploaded",
		slog.String("document_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.Int64("size", doc.Size))
	return doc, nil
}

// List returns recent documents, newest first; limit 0 means no limit
func (s *DocumentService) List(ctx context.Context, limit int) ([]*store.Document, error) {
	docs, err := s.docs.ListDocuments(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Get returns one document
func (s *DocumentService) Get(ctx context.Context, id string) (*store.Document, error) {
	doc, err := s.docs.GetDocument(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}
