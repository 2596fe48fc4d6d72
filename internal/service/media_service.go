package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/transfer"
	"github.com/maheshrc27/skyqueue/pkg/utils"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// The service rejects images above ~976KB; stay a little below.
	MaxImageBytes = 950 * 1024
	MaxVideoBytes = 50 * 1024 * 1024

	maxImageDimension = 2048
	minImageDimension = 320
	maxImageAttempts  = 10

	startQuality = 90
	qualityStep  = 15
	qualityFloor = 50
	shrinkFactor = 0.85

	MaxAttachments = 4
)

var allowedTypes = map[string]struct{}{
	"jpg": {}, "png": {}, "gif": {}, "webp": {},
	"mp4": {}, "mov": {}, "webm": {}, "mkv": {}, "m4v": {},
}

// CompressResult is the outcome of fitting one file into its budget.
// WithinBudget is false when every attempt stayed above the limit and the
// last one was kept anyway.
type CompressResult struct {
	Attachment   models.MediaAttachment
	WithinBudget bool
	OriginalSize int
	// Attempts holds the encoded size of every re-encode, in order. Empty
	// when the input already fit.
	Attempts []int
}

type MediaLimits struct {
	ImageBytes int
	VideoBytes int
}

type MediaService interface {
	Compress(ctx context.Context, upload transfer.MediaUpload) (*CompressResult, error)
	CompressAll(ctx context.Context, uploads []transfer.MediaUpload) ([]models.MediaAttachment, error)
}

type mediaService struct {
	limits MediaLimits
	video  VideoTranscoder
}

func NewMediaService(limits MediaLimits, video VideoTranscoder) MediaService {
	if limits.ImageBytes <= 0 {
		limits.ImageBytes = MaxImageBytes
	}
	if limits.VideoBytes <= 0 {
		limits.VideoBytes = MaxVideoBytes
	}
	return &mediaService{limits: limits, video: video}
}

func (s *mediaService) CompressAll(ctx context.Context, uploads []transfer.MediaUpload) ([]models.MediaAttachment, error) {
	if len(uploads) > MaxAttachments {
		return nil, fmt.Errorf("%w: at most %d media files per post", models.ErrValidation, MaxAttachments)
	}
	out := make([]models.MediaAttachment, 0, len(uploads))
	for _, u := range uploads {
		res, err := s.Compress(ctx, u)
		if err != nil {
			return nil, err
		}
		if !res.WithinBudget {
			slog.Warn("media still above budget after compression",
				"name", u.Name, "size", humanize.Bytes(uint64(len(u.Data))))
		}
		out = append(out, res.Attachment)
	}
	return out, nil
}

func (s *mediaService) Compress(ctx context.Context, upload transfer.MediaUpload) (*CompressResult, error) {
	mimeType, err := detectMimeType(upload)
	if err != nil {
		return nil, err
	}

	switch models.MediaClassOf(mimeType) {
	case models.MediaImage:
		return s.compressImage(upload, mimeType)
	case models.MediaVideo:
		return s.compressVideo(ctx, upload, mimeType)
	}
	return nil, fmt.Errorf("%w: file type %s is not allowed", models.ErrValidation, mimeType)
}

func detectMimeType(upload transfer.MediaUpload) (string, error) {
	kind, err := filetype.Match(upload.Data)
	if err != nil || kind == types.Unknown {
		if upload.MimeType == "" {
			return "", fmt.Errorf("%w: unsupported file type for %s", models.ErrValidation, upload.Name)
		}
		return upload.MimeType, nil
	}
	if _, ok := allowedTypes[kind.Extension]; !ok {
		return "", fmt.Errorf("%w: file type %s is not allowed", models.ErrValidation, kind.Extension)
	}
	return kind.MIME.Value, nil
}

// declaredType keeps the client's mime type for untouched files unless it
// names another media class than the content.
func declaredType(upload transfer.MediaUpload, detected string) string {
	if upload.MimeType != "" && models.MediaClassOf(upload.MimeType) == models.MediaClassOf(detected) {
		return upload.MimeType
	}
	return detected
}

func (s *mediaService) compressImage(upload transfer.MediaUpload, mimeType string) (*CompressResult, error) {
	budget := s.limits.ImageBytes
	res := &CompressResult{OriginalSize: len(upload.Data)}

	if len(upload.Data) <= budget {
		res.Attachment = attachment(upload, upload.Name, declaredType(upload, mimeType), upload.Data)
		res.WithinBudget = true
		return res, nil
	}

	encoded, attempts, err := ShrinkImage(upload.Data, budget)
	if err != nil {
		return nil, err
	}
	res.Attempts = attempts
	res.WithinBudget = len(encoded) <= budget
	res.Attachment = attachment(upload, replaceExt(upload.Name, ".jpg"), "image/jpeg", encoded)

	slog.Info("image compressed",
		"name", upload.Name,
		"from", humanize.Bytes(uint64(len(upload.Data))),
		"to", humanize.Bytes(uint64(len(encoded))),
		"attempts", len(attempts))
	return res, nil
}

// ShrinkImage re-encodes an image as JPEG until it fits budget. Quality
// steps down first (90, 75, 60, 45); once exhausted the dimensions shrink by
// 15% and quality starts over. After maxImageAttempts encodes the last
// output is returned even if it is still too large. The second value lists
// each attempt's size.
func ShrinkImage(data []byte, budget int) ([]byte, []int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode image: %v", models.ErrTranscode, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if longest := max(w, h); longest > maxImageDimension {
		ratio := float64(maxImageDimension) / float64(longest)
		w = max(1, int(math.Round(float64(w)*ratio)))
		h = max(1, int(math.Round(float64(h)*ratio)))
	}

	var (
		out      []byte
		attempts []int
		canvas   *image.RGBA
		quality  = startQuality
	)
	for len(attempts) < maxImageAttempts {
		if canvas == nil || canvas.Bounds().Dx() != w || canvas.Bounds().Dy() != h {
			canvas = flatten(src, w, h)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
			return nil, nil, fmt.Errorf("%w: encode jpeg: %v", models.ErrTranscode, err)
		}
		out = buf.Bytes()
		attempts = append(attempts, len(out))
		if len(out) <= budget {
			break
		}

		if quality > qualityFloor {
			quality -= qualityStep
		} else {
			w = shrink(w)
			h = shrink(h)
			quality = startQuality
		}
	}
	return out, attempts, nil
}

func shrink(side int) int {
	next := int(math.Round(float64(side) * shrinkFactor))
	return max(min(minImageDimension, side), next)
}

// flatten scales src to w x h over a white background, since JPEG has no
// alpha channel.
func flatten(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func (s *mediaService) compressVideo(ctx context.Context, upload transfer.MediaUpload, mimeType string) (*CompressResult, error) {
	budget := s.limits.VideoBytes
	res := &CompressResult{OriginalSize: len(upload.Data)}

	if len(upload.Data) <= budget {
		res.Attachment = attachment(upload, upload.Name, declaredType(upload, mimeType), upload.Data)
		res.WithinBudget = true
		return res, nil
	}

	if s.video == nil || !s.video.Available() {
		return nil, fmt.Errorf("%w: %s is %s (limit %s) and no video transcoder is available",
			models.ErrTranscode, upload.Name, humanize.Bytes(uint64(len(upload.Data))), humanize.Bytes(uint64(budget)))
	}

	var (
		out     []byte
		outType string
	)
	for _, profile := range VideoProfiles {
		data, mt, err := s.video.Transcode(ctx, upload.Data, profile)
		if err != nil {
			slog.Warn("video transcode failed", "name", upload.Name, "profile", profile.Name, "error", err)
			return nil, fmt.Errorf("%w: %v", models.ErrTranscode, err)
		}
		out, outType = data, mt
		res.Attempts = append(res.Attempts, len(data))
		if len(data) <= budget {
			break
		}
	}

	res.WithinBudget = len(out) <= budget
	res.Attachment = attachment(upload, replaceExt(upload.Name, extensionFor(outType)), outType, out)
	slog.Info("video compressed",
		"name", upload.Name,
		"from", humanize.Bytes(uint64(len(upload.Data))),
		"to", humanize.Bytes(uint64(len(out))))
	return res, nil
}

func attachment(upload transfer.MediaUpload, name, mimeType string, data []byte) models.MediaAttachment {
	return models.MediaAttachment{
		Name:     name,
		MimeType: mimeType,
		AltText:  upload.AltText,
		Payload:  utils.EncodeDataURL(mimeType, data),
	}
}

func replaceExt(name, ext string) string {
	if name == "" {
		return "media" + ext
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "video/mp4"):
		return ".mp4"
	}
	return ""
}
