package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const stagedPrefix = "r2:"

// MediaStaging decides where attachment bytes live between scheduling and
// publication. Inline keeps them in the queue as data URLs; R2 moves them to
// a bucket and leaves a reference behind.
type MediaStaging interface {
	Stage(ctx context.Context, att models.MediaAttachment) (models.MediaAttachment, error)
	Fetch(ctx context.Context, att models.MediaAttachment) ([]byte, string, error)
	Release(ctx context.Context, att models.MediaAttachment) error
}

type inlineStaging struct{}

func NewInlineStaging() MediaStaging { return inlineStaging{} }

func (inlineStaging) Stage(_ context.Context, att models.MediaAttachment) (models.MediaAttachment, error) {
	return att, nil
}

func (inlineStaging) Fetch(_ context.Context, att models.MediaAttachment) ([]byte, string, error) {
	return utils.DecodeDataURL(att.Payload, att.MimeType)
}

func (inlineStaging) Release(context.Context, models.MediaAttachment) error { return nil }

// S3API is the part of the S3 client the R2 staging needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type R2Service struct {
	client S3API
	bucket string
}

func NewR2Client(ctx context.Context, r2 cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	}), nil
}

func NewR2Service(client S3API, bucket string) *R2Service {
	return &R2Service{client: client, bucket: bucket}
}

func (r *R2Service) Stage(ctx context.Context, att models.MediaAttachment) (models.MediaAttachment, error) {
	if strings.HasPrefix(att.Payload, stagedPrefix) {
		return att, nil
	}
	data, mimeType, err := utils.DecodeDataURL(att.Payload, att.MimeType)
	if err != nil {
		return att, err
	}

	key, err := gonanoid.New()
	if err != nil {
		return att, err
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		slog.Info(err.Error())
		return att, fmt.Errorf("stage %s: %w", att.Name, err)
	}

	staged := att
	staged.Payload = stagedPrefix + key
	return staged, nil
}

func (r *R2Service) Fetch(ctx context.Context, att models.MediaAttachment) ([]byte, string, error) {
	key, staged := strings.CutPrefix(att.Payload, stagedPrefix)
	if !staged {
		return utils.DecodeDataURL(att.Payload, att.MimeType)
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, "", fmt.Errorf("fetch %s: %w", att.Name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	return data, att.MimeType, nil
}

func (r *R2Service) Release(ctx context.Context, att models.MediaAttachment) error {
	key, staged := strings.CutPrefix(att.Payload, stagedPrefix)
	if !staged {
		return nil
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
	}
	return err
}
