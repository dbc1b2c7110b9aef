package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/blob"
	"aicaas.com/chatbot-backend/internal/extract"
	"aicaas.com/chatbot-backend/internal/store"
	"aicaas.com/chatbot-backend/internal/utils"
)

type KnowledgeService struct {
	db       *store.SQLiteStore
	access   *AccessResolver
	blobs    blob.Store
	maxBytes int64
	log      *zap.SugaredLogger
}

func NewKnowledgeService(db *store.SQLiteStore, access *AccessResolver, blobs blob.Store, maxBytes int64, log *zap.SugaredLogger) *KnowledgeService {
	return &KnowledgeService{db: db, access: access, blobs: blobs, maxBytes: maxBytes, log: log}
}

// Upload stores a document as general knowledge (nil botID) or for a bot the
// caller may access.
func (s *KnowledgeService) Upload(ctx context.Context, userID string, botID *string, filename string, data []byte) (*store.KnowledgeEntry, error) {
	if len(data) == 0 {
		return nil, apperr.BadRequest("File is empty")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, apperr.BadRequest(fmt.Sprintf("File exceeds the %s upload limit", utils.HumanSize(s.maxBytes)))
	}
	if _, err := s.access.Authorize(ctx, userID, botID); err != nil {
		return nil, err
	}

	safeName := utils.SanitizeFilename(filename)
	entry := &store.KnowledgeEntry{
		ID:       uuid.NewString(),
		UserID:   userID,
		BotID:    botID,
		Filename: safeName,
		FileSize: utils.HumanSize(int64(len(data))),
	}
	location, err := s.blobs.Put(ctx, entry.ID+"-"+safeName, data, mimetype.Detect(data).String())
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	entry.Location = location

	if err := s.db.CreateKnowledge(ctx, entry); err != nil {
		s.removeBlob(ctx, location)
		return nil, err
	}
	return entry, nil
}

// RegisterRemote records a document hosted at an http(s) URL. Nothing is
// copied: retrieval downloads it each time and deleting the entry leaves the
// remote file alone.
func (s *KnowledgeService) RegisterRemote(ctx context.Context, userID string, botID *string, rawURL string) (*store.KnowledgeEntry, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validate.Var(rawURL, "required,http_url"); err != nil {
		return nil, apperr.BadRequest("A valid http(s) document URL is required").Wrap(err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.BadRequest("A valid http(s) document URL is required").Wrap(err)
	}
	name := utils.SanitizeFilename(path.Base(u.Path))
	if extract.KindForFilename(name) == extract.KindUnsupported {
		return nil, apperr.BadRequest(fmt.Sprintf("Unsupported file format: %s", extract.Ext(name)))
	}
	if _, err := s.access.Authorize(ctx, userID, botID); err != nil {
		return nil, err
	}

	entry := &store.KnowledgeEntry{
		ID:       uuid.NewString(),
		UserID:   userID,
		BotID:    botID,
		Filename: name,
		Location: u.String(),
	}
	if err := s.db.CreateKnowledge(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *KnowledgeService) ListMine(ctx context.Context, userID string) ([]store.KnowledgeEntry, error) {
	return s.db.ListKnowledgeByUploader(ctx, userID)
}

func (s *KnowledgeService) ListForBot(ctx context.Context, userID, botID string) ([]store.KnowledgeWithUploader, error) {
	if _, err := s.access.Authorize(ctx, userID, &botID); err != nil {
		return nil, err
	}
	return s.db.ListKnowledgeForBot(ctx, botID)
}

// Delete is limited to the uploader. The stored file is removed best-effort.
func (s *KnowledgeService) Delete(ctx context.Context, userID, id string) error {
	entry, err := s.db.GetKnowledge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("File not found")
	}
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return apperr.Forbidden("Only the uploader can delete this file")
	}
	if err := s.db.DeleteKnowledge(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("File not found")
		}
		return err
	}
	s.removeBlob(ctx, entry.Location)
	return nil
}

func (s *KnowledgeService) removeBlobs(ctx context.Context, entries []store.KnowledgeEntry) {
	for _, e := range entries {
		s.removeBlob(ctx, e.Location)
	}
}

func (s *KnowledgeService) removeBlob(ctx context.Context, location string) {
	if err := s.blobs.Delete(ctx, location); err != nil {
		s.log.Warnw("failed to remove stored file", "error", err)
	}
}
