package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/transfer"
)

type PostService interface {
	// PrepareMedia compresses raw uploads and stages them for later use.
	PrepareMedia(ctx context.Context, uploads []transfer.MediaUpload) ([]models.MediaAttachment, error)
	// UploadMedia turns prepared attachments into blob references.
	UploadMedia(ctx context.Context, media []models.MediaAttachment) ([]models.BlobRef, error)
	PostNow(ctx context.Context, text string, uploads []transfer.MediaUpload) (*models.RecordRef, error)
	// PublishScheduled uploads an entry's media and publishes it.
	PublishScheduled(ctx context.Context, post *models.ScheduledPost) (*models.RecordRef, error)
	ReleaseMedia(ctx context.Context, media []models.MediaAttachment)
}

type postService struct {
	bsky    BlueskyService
	media   MediaService
	staging MediaStaging
}

func NewPostService(bsky BlueskyService, media MediaService, staging MediaStaging) PostService {
	if staging == nil {
		staging = NewInlineStaging()
	}
	return &postService{bsky: bsky, media: media, staging: staging}
}

func (s *postService) PrepareMedia(ctx context.Context, uploads []transfer.MediaUpload) ([]models.MediaAttachment, error) {
	compressed, err := s.media.CompressAll(ctx, uploads)
	if err != nil {
		return nil, err
	}

	staged := make([]models.MediaAttachment, 0, len(compressed))
	for _, att := range compressed {
		st, err := s.staging.Stage(ctx, att)
		if err != nil {
			s.ReleaseMedia(ctx, staged)
			return nil, err
		}
		staged = append(staged, st)
	}
	return staged, nil
}

func (s *postService) UploadMedia(ctx context.Context, media []models.MediaAttachment) ([]models.BlobRef, error) {
	if _, err := s.bsky.EnsureSession(ctx); err != nil {
		return nil, err
	}

	blobs := make([]models.BlobRef, 0, len(media))
	for _, m := range media {
		data, mimeType, err := s.staging.Fetch(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", models.ErrUpload, m.Name, err)
		}
		blob, err := s.bsky.UploadBlob(ctx, data, mimeType)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, models.BlobRef{Blob: blob, MimeType: mimeType, AltText: m.AltText})
	}
	return blobs, nil
}

func (s *postService) PostNow(ctx context.Context, text string, uploads []transfer.MediaUpload) (*models.RecordRef, error) {
	if _, err := s.bsky.EnsureSession(ctx); err != nil {
		return nil, err
	}

	media, err := s.PrepareMedia(ctx, uploads)
	if err != nil {
		return nil, err
	}
	defer s.ReleaseMedia(ctx, media)

	blobs, err := s.UploadMedia(ctx, media)
	if err != nil {
		return nil, err
	}
	return s.bsky.Publish(ctx, text, blobs)
}

func (s *postService) PublishScheduled(ctx context.Context, post *models.ScheduledPost) (*models.RecordRef, error) {
	if _, err := s.bsky.EnsureSession(ctx); err != nil {
		return nil, err
	}

	var blobs []models.BlobRef
	if len(post.MediaRaw) > 0 {
		uploaded, err := s.UploadMedia(ctx, post.MediaRaw)
		if err != nil {
			return nil, err
		}
		blobs = uploaded
		slog.Info("media uploaded at publish time", "id", post.ID, "count", len(blobs))
	}

	ref, err := s.bsky.Publish(ctx, post.Text, blobs)
	if IsUnauthorized(err) {
		// the session was dropped; uploaded blobs stay valid for the same account
		slog.Info("session expired, logging in again", "id", post.ID)
		if _, err := s.bsky.EnsureSession(ctx); err != nil {
			return nil, err
		}
		return s.bsky.Publish(ctx, post.Text, blobs)
	}
	return ref, err
}

func (s *postService) ReleaseMedia(ctx context.Context, media []models.MediaAttachment) {
	for _, m := range media {
		if err := s.staging.Release(ctx, m); err != nil {
			slog.Warn("could not release staged media", "name", m.Name, "error", err)
		}
	}
}
