package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/internal/transfer"
	"github.com/maheshrc27/skyqueue/pkg/utils"
	"go.uber.org/ratelimit"
)

const (
	PostCollection = "app.bsky.feed.post"

	nsidCreateSession  = "com.atproto.server.createSession"
	nsidRefreshSession = "com.atproto.server.refreshSession"
	nsidUploadBlob     = "com.atproto.repo.uploadBlob"
	nsidCreateRecord   = "com.atproto.repo.createRecord"

	embedTypeImages = "app.bsky.embed.images"
	embedTypeVideo  = "app.bsky.embed.video"

	maxEmbedImages = 4

	// access tokens closer than this to expiry are refreshed before publishing
	refreshMargin = 5 * time.Minute
)

// RemoteError is a non-2xx answer from the service. Kind is one of the
// models.Err* sentinels.
type RemoteError struct {
	Kind   error
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %d - %s", e.Kind, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Kind }

type BlueskyService interface {
	Login(ctx context.Context, identifier, password, service string) (*models.Session, error)
	// EnsureSession returns the cached session for the configured service or
	// logs in with the stored credentials.
	EnsureSession(ctx context.Context) (*models.Session, error)
	RefreshIfPossible(ctx context.Context)
	UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error)
	Publish(ctx context.Context, text string, blobs []models.BlobRef) (*models.RecordRef, error)
	CurrentSession() *models.Session
	Logout()
}

type blueskyService struct {
	client  *http.Client
	creds   repository.CredentialsRepository
	opts    repository.OptionsRepository
	limiter ratelimit.Limiter
	now     func() time.Time

	mu      sync.Mutex
	session *models.Session
}

func NewBlueskyService(
	client *http.Client,
	creds repository.CredentialsRepository,
	opts repository.OptionsRepository,
	requestsPerSecond int) BlueskyService {
	if client == nil {
		client = http.DefaultClient
	}
	limiter := ratelimit.NewUnlimited()
	if requestsPerSecond > 0 {
		limiter = ratelimit.New(requestsPerSecond)
	}
	return &blueskyService{
		client:  client,
		creds:   creds,
		opts:    opts,
		limiter: limiter,
		now:     time.Now,
	}
}

func (s *blueskyService) Login(ctx context.Context, identifier, password, service string) (*models.Session, error) {
	service = strings.TrimRight(service, "/")
	slog.Info("logging in", "identifier", identifier, "service", service)

	body, err := json.Marshal(transfer.CreateSessionRequest{Identifier: identifier, Password: password})
	if err != nil {
		return nil, err
	}

	status, respBody, err := s.do(ctx, http.MethodPost, service, nsidCreateSession, "", "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	if !ok(status) {
		slog.Error("login rejected", "status", status, "body", respBody)
		return nil, &RemoteError{Kind: models.ErrAuth, Status: status, Body: respBody}
	}

	var session models.Session
	if err := json.Unmarshal([]byte(respBody), &session); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", models.ErrAuth, err)
	}
	session.Service = service

	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()

	slog.Info("logged in", "handle", session.Handle)
	cp := session
	return &cp, nil
}

func (s *blueskyService) EnsureSession(ctx context.Context) (*models.Session, error) {
	creds, err := s.creds.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: no stored credentials, log in with an app password first", models.ErrAuth)
	}
	opts, err := s.opts.Get(ctx)
	if err != nil {
		return nil, err
	}
	service := strings.TrimRight(opts.Service, "/")

	if cur := s.CurrentSession(); cur != nil && cur.AccessJwt != "" && cur.Service == service {
		return cur, nil
	}
	return s.Login(ctx, creds.Identifier, creds.Password, service)
}

func (s *blueskyService) RefreshIfPossible(ctx context.Context) {
	cur := s.CurrentSession()
	if cur == nil || cur.RefreshJwt == "" {
		return
	}

	status, respBody, err := s.do(ctx, http.MethodPost, cur.Service, nsidRefreshSession, cur.RefreshJwt, "", nil)
	if err != nil || !ok(status) {
		slog.Info("session refresh skipped", "status", status, "error", err)
		return
	}

	var refreshed models.Session
	if err := json.Unmarshal([]byte(respBody), &refreshed); err != nil {
		slog.Info("session refresh returned an unreadable body", "error", err)
		return
	}
	if refreshed.DID == "" {
		refreshed.DID = cur.DID
	}
	if refreshed.Handle == "" {
		refreshed.Handle = cur.Handle
	}
	if refreshed.AccessJwt == "" || refreshed.RefreshJwt == "" {
		return
	}
	refreshed.Service = cur.Service

	s.mu.Lock()
	// a concurrent login for another endpoint wins
	if s.session != nil && s.session.Service == cur.Service {
		s.session = &refreshed
	}
	s.mu.Unlock()
	slog.Debug("session refreshed", "handle", refreshed.Handle)
}

func (s *blueskyService) refreshIfExpiring(ctx context.Context) {
	cur := s.CurrentSession()
	if cur == nil {
		return
	}
	if exp, known := utils.TokenExpiry(cur.AccessJwt); known && exp.Sub(s.now()) > refreshMargin {
		return
	}
	s.RefreshIfPossible(ctx)
}

func (s *blueskyService) UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error) {
	cur := s.CurrentSession()
	if cur == nil {
		return nil, fmt.Errorf("%w: no active session", models.ErrAuth)
	}
	slog.Info("uploading blob", "type", mimeType, "size", len(data))

	status, respBody, err := s.do(ctx, http.MethodPost, cur.Service, nsidUploadBlob, cur.AccessJwt, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpload, err)
	}
	if !ok(status) {
		s.dropSessionOnUnauthorized(status, cur)
		slog.Error("upload rejected", "status", status, "body", respBody)
		return nil, &RemoteError{Kind: models.ErrUpload, Status: status, Body: respBody}
	}

	var result transfer.UploadBlobResponse
	if err := json.Unmarshal([]byte(respBody), &result); err != nil {
		return nil, fmt.Errorf("%w: decode blob: %v", models.ErrUpload, err)
	}
	if len(result.Blob) == 0 {
		// older servers answer with the blob object itself
		return json.RawMessage(respBody), nil
	}
	return result.Blob, nil
}

func (s *blueskyService) Publish(ctx context.Context, text string, blobs []models.BlobRef) (*models.RecordRef, error) {
	s.refreshIfExpiring(ctx)

	cur := s.CurrentSession()
	if cur == nil {
		return nil, fmt.Errorf("%w: no active session", models.ErrAuth)
	}

	record := transfer.PostRecord{
		Type:      PostCollection,
		Text:      text,
		CreatedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	if embed := BuildEmbed(blobs); embed != nil {
		record.Embed = embed
	}
	slog.Info("publishing", "has_text", text != "", "media", len(blobs))

	body, err := json.Marshal(transfer.CreateRecordRequest{
		Repo:       cur.DID,
		Collection: PostCollection,
		Record:     record,
	})
	if err != nil {
		return nil, err
	}

	status, respBody, err := s.do(ctx, http.MethodPost, cur.Service, nsidCreateRecord, cur.AccessJwt, "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPublish, err)
	}
	if !ok(status) {
		s.dropSessionOnUnauthorized(status, cur)
		slog.Error("publish rejected", "status", status, "body", respBody)
		return nil, &RemoteError{Kind: models.ErrPublish, Status: status, Body: respBody}
	}

	var ref models.RecordRef
	if err := json.Unmarshal([]byte(respBody), &ref); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", models.ErrPublish, err)
	}
	slog.Info("published", "uri", ref.URI)
	return &ref, nil
}

// BuildEmbed picks the media part of a post: a single video wins over
// images, images are capped at four, no media means no embed.
func BuildEmbed(blobs []models.BlobRef) any {
	var images []transfer.EmbedImage
	for _, b := range blobs {
		switch models.MediaClassOf(b.MimeType) {
		case models.MediaVideo:
			return transfer.VideoEmbed{Type: embedTypeVideo, Video: b.Blob, Alt: b.AltText}
		case models.MediaImage:
			if len(images) < maxEmbedImages {
				images = append(images, transfer.EmbedImage{Image: b.Blob, Alt: b.AltText})
			}
		}
	}
	if len(images) == 0 {
		return nil
	}
	return transfer.ImagesEmbed{Type: embedTypeImages, Images: images}
}

func (s *blueskyService) CurrentSession() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

func (s *blueskyService) Logout() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

func (s *blueskyService) dropSessionOnUnauthorized(status int, used *models.Session) {
	if status != http.StatusUnauthorized {
		return
	}
	s.mu.Lock()
	if s.session != nil && s.session.AccessJwt == used.AccessJwt {
		s.session = nil
	}
	s.mu.Unlock()
}

func (s *blueskyService) do(ctx context.Context, method, service, nsid, bearer, contentType string, body []byte) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, service+"/xrpc/"+nsid, reader)
	if err != nil {
		return 0, "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	s.limiter.Take()
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(respBody), nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

// IsUnauthorized reports whether err came from a 401 answer.
func IsUnauthorized(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusUnauthorized
}
