package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/mdpublish/internal/logger"
	"github.com/dtroode/mdpublish/internal/model"
	"github.com/dtroode/mdpublish/internal/transform"
)

const htmlContentType = "text/html; charset=utf-8"

// Sync walks a user's change feed from the stored cursor, publishes every
// changed Markdown file as HTML and advances the cursor page by page.
type Sync struct {
	credentials model.CredentialStore
	cursors     model.CursorStore
	providers   model.ProviderFactory
	locker      model.Locker
	mirror      model.Mirror
	pageTimeout time.Duration
	logger      *logger.Logger
}

type SyncOption func(*Sync)

// WithMirror uploads a copy of each output to m.
func WithMirror(m model.Mirror) SyncOption {
	return func(s *Sync) {
		s.mirror = m
	}
}

// WithPageTimeout bounds every change-feed fetch. Zero disables the bound.
func WithPageTimeout(d time.Duration) SyncOption {
	return func(s *Sync) {
		s.pageTimeout = d
	}
}

func NewSync(
	credentials model.CredentialStore,
	cursors model.CursorStore,
	providers model.ProviderFactory,
	locker model.Locker,
	logger *logger.Logger,
	opts ...SyncOption,
) *Sync {
	s := &Sync{
		credentials: credentials,
		cursors:     cursors,
		providers:   providers,
		locker:      locker,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync brings uid's outputs up to date. Runs for the same uid never overlap.
// On error the stored cursor still points at the last fully processed page.
func (s *Sync) Sync(ctx context.Context, uid model.UID) (model.SyncResult, error) {
	result := model.SyncResult{RunID: uuid.NewString()}
	log := s.logger.With("uid", string(uid), "run_id", result.RunID)

	release, err := s.locker.Lock(ctx, string(uid))
	if err != nil {
		return result, fmt.Errorf("failed to acquire user lease: %w", err)
	}
	defer release()

	credential, err := s.credentials.Get(ctx, uid)
	if errors.Is(err, model.ErrNotFound) {
		return result, fmt.Errorf("%w: %s", model.ErrNoCredential, uid)
	}
	if err != nil {
		return result, fmt.Errorf("failed to get credential: %w", err)
	}
	provider := s.providers.ForCredential(credential)

	cursor, hasCursor, err := s.cursors.Get(ctx, uid)
	if err != nil {
		return result, fmt.Errorf("failed to get cursor: %w", err)
	}
	log.Debug("sync started", "has_cursor", hasCursor)

	restarted := false
	for {
		page, err := s.fetchPage(ctx, provider, cursor, hasCursor)
		if errors.Is(err, model.ErrCursorReset) && hasCursor && !restarted {
			log.Warn("provider reset the cursor, restarting from the beginning")
			if err := s.cursors.Reset(ctx, uid); err != nil {
				return result, fmt.Errorf("failed to reset cursor: %w", err)
			}
			cursor, hasCursor, restarted = "", false, true
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to fetch page: %w", err)
		}

		if err := s.publishPage(ctx, log, uid, provider, page, &result); err != nil {
			return result, err
		}

		if err := s.cursors.Set(ctx, uid, page.Cursor); err != nil {
			return result, fmt.Errorf("failed to persist cursor: %w", err)
		}
		result.Pages++
		result.Cursor = page.Cursor
		cursor, hasCursor = page.Cursor, true

		if !page.HasMore {
			break
		}
	}

	log.Info("sync completed",
		"pages", result.Pages,
		"written", result.Written,
		"skipped", result.Skipped,
	)

	return result, nil
}

func (s *Sync) fetchPage(ctx context.Context, provider model.Provider, cursor string, hasCursor bool) (model.Page, error) {
	if s.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pageTimeout)
		defer cancel()
	}
	return provider.ListDelta(ctx, cursor, hasCursor)
}

// publishPage handles entries in feed order and stops at the first failure.
func (s *Sync) publishPage(
	ctx context.Context,
	log *logger.Logger,
	uid model.UID,
	provider model.Provider,
	page model.Page,
	result *model.SyncResult,
) error {
	for _, entry := range page.Entries {
		if !transform.ShouldProcess(entry) {
			result.Skipped++
			continue
		}

		src, err := provider.Read(ctx, entry.Path)
		if errors.Is(err, model.ErrNotFound) {
			// removed after the page was listed; a later page carries the deletion
			log.Warn("source vanished before download", "path", entry.Path)
			result.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Path, err)
		}

		out := transform.OutputPath(entry.Path)
		html := transform.Render(src)
		if err := provider.Write(ctx, out, html, true); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		result.Written++
		log.Debug("published", "source", entry.Path, "output", out, "bytes", len(html))

		if s.mirror != nil {
			key := path.Join(string(uid), strings.TrimPrefix(out, "/"))
			if err := s.mirror.Upload(ctx, key, html, htmlContentType); err != nil {
				log.Warn("failed to mirror output", "key", key, "error", err)
			}
		}
	}
	return nil
}
