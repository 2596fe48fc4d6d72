package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBluesky(t *testing.T) (*fakePDS, *testStore, BlueskyService) {
	t.Helper()
	pds := newFakePDS(t)
	store := newTestStore(t, pds.URL)
	return pds, store, NewBlueskyService(pds.Client(), store.creds, store.opts, 0)
}

func TestLogin(t *testing.T) {
	pds, _, bsky := newTestBluesky(t)

	session, err := bsky.Login(context.Background(), "alice.test", "app-pass", pds.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", session.DID)
	assert.Equal(t, "alice.test", session.Handle)
	assert.Equal(t, pds.URL, session.Service)
	assert.Equal(t, "access-1", bsky.CurrentSession().AccessJwt)
}

func TestLoginRejected(t *testing.T) {
	pds, _, bsky := newTestBluesky(t)

	_, err := bsky.Login(context.Background(), "alice.test", "wrong", pds.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAuth))

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Contains(t, re.Body, "Invalid identifier or password")
	assert.Nil(t, bsky.CurrentSession())
}

func TestEnsureSessionWithoutCredentials(t *testing.T) {
	_, _, bsky := newTestBluesky(t)

	_, err := bsky.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAuth))
}

func TestEnsureSessionReusesSession(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	ctx := context.Background()

	first, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)
	second, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.AccessJwt, second.AccessJwt)
	assert.Equal(t, 1, pds.count(nsidCreateSession))
}

func TestEnsureSessionFollowsServiceChange(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	ctx := context.Background()

	_, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)

	other := newFakePDS(t)
	require.NoError(t, store.opts.Update(ctx, &models.Options{Service: other.URL, Notify: true}))

	session, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.URL, session.Service)
	assert.Equal(t, 1, pds.count(nsidCreateSession))
	assert.Equal(t, 1, other.count(nsidCreateSession))
}

func TestUploadBlob(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	ctx := context.Background()

	_, err := bsky.UploadBlob(ctx, []byte("x"), "image/png")
	assert.True(t, errors.Is(err, models.ErrAuth))

	_, err = bsky.EnsureSession(ctx)
	require.NoError(t, err)

	blob, err := bsky.UploadBlob(ctx, []byte("png bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", pds.lastBlobType)
	assert.Equal(t, "access-1", pds.lastBearer)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, "blob", decoded["$type"])
	assert.EqualValues(t, 9, decoded["size"])
}

func TestUploadBlobRejected(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	pds.uploadStatus = http.StatusRequestEntityTooLarge
	ctx := context.Background()

	_, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)

	_, err = bsky.UploadBlob(ctx, []byte("big"), "video/mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpload))
	assert.NotNil(t, bsky.CurrentSession())
}

func TestPublishWithImages(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	ctx := context.Background()

	_, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)

	blob := json.RawMessage(`{"$type":"blob","ref":{"$link":"x"},"mimeType":"image/jpeg","size":3}`)
	ref, err := bsky.Publish(ctx, "hello sky", []models.BlobRef{
		{Blob: blob, MimeType: "image/jpeg", AltText: "a cat"},
	})
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3k", ref.URI)

	require.NotNil(t, pds.lastRecord)
	assert.Equal(t, PostCollection, pds.lastRecord["$type"])
	assert.Equal(t, "hello sky", pds.lastRecord["text"])
	embed := pds.lastRecord["embed"].(map[string]any)
	assert.Equal(t, embedTypeImages, embed["$type"])
	images := embed["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, "a cat", images[0].(map[string]any)["alt"])
}

func TestPublishWithoutMediaHasNoEmbed(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	ctx := context.Background()

	_, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)
	_, err = bsky.Publish(ctx, "", nil)
	require.NoError(t, err)

	_, hasEmbed := pds.lastRecord["embed"]
	assert.False(t, hasEmbed)
	assert.Equal(t, "", pds.lastRecord["text"])
}

func TestPublishUnauthorizedDropsSession(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	pds.publishStatus = []int{http.StatusUnauthorized}
	ctx := context.Background()

	_, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)

	_, err = bsky.Publish(ctx, "hello", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPublish))
	assert.True(t, IsUnauthorized(err))
	assert.Nil(t, bsky.CurrentSession())
}

func TestPublishRefreshesExpiringSession(t *testing.T) {
	pds, store, bsky := newTestBluesky(t)
	store.saveCreds(t, "app-pass")
	ctx := context.Background()

	_, err := bsky.EnsureSession(ctx)
	require.NoError(t, err)

	// opaque tokens have no readable expiry and are always refreshed
	_, err = bsky.Publish(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pds.count(nsidRefreshSession))
	assert.Equal(t, "access-2", pds.lastBearer)
}

func TestPublishKeepsFreshSession(t *testing.T) {
	pds := newFakePDS(t)
	fresh, err := utils.GenerateToken("pds-secret", "alice.test", 2*time.Hour)
	require.NoError(t, err)
	pds.accessJwt = fresh

	store := newTestStore(t, pds.URL)
	store.saveCreds(t, "app-pass")
	bsky := NewBlueskyService(pds.Client(), store.creds, store.opts, 0)
	ctx := context.Background()

	_, err = bsky.EnsureSession(ctx)
	require.NoError(t, err)
	_, err = bsky.Publish(ctx, "hello", nil)
	require.NoError(t, err)

	assert.Zero(t, pds.count(nsidRefreshSession))
	assert.Equal(t, fresh, pds.lastBearer)
}

func TestBuildEmbed(t *testing.T) {
	img := func(alt string) models.BlobRef {
		return models.BlobRef{Blob: json.RawMessage(`{}`), MimeType: "image/png", AltText: alt}
	}
	video := models.BlobRef{Blob: json.RawMessage(`{"v":1}`), MimeType: "video/mp4", AltText: "clip"}

	assert.Nil(t, BuildEmbed(nil))
	assert.Nil(t, BuildEmbed([]models.BlobRef{{MimeType: "application/pdf"}}))

	raw, err := json.Marshal(BuildEmbed([]models.BlobRef{img("1"), video, img("2")}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"$type":"app.bsky.embed.video","video":{"v":1},"alt":"clip"}`, string(raw))

	raw, err = json.Marshal(BuildEmbed([]models.BlobRef{img("1"), img("2"), img("3"), img("4"), img("5")}))
	require.NoError(t, err)
	var images struct {
		Type   string `json:"$type"`
		Images []struct {
			Alt string `json:"alt"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(raw, &images))
	assert.Equal(t, "app.bsky.embed.images", images.Type)
	require.Len(t, images.Images, 4)
	assert.Equal(t, "4", images.Images[3].Alt)
}
