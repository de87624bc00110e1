package imagestore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/example/glaucoscan/internal/config"
)

// S3Archiver copies stored uploads to an S3 compatible bucket.
type S3Archiver struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   *zap.Logger
}

// NewS3Archiver connects to the bucket, creating it when it does not exist.
func NewS3Archiver(ctx context.Context, cfg config.S3, logger *zap.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint))
			o.UsePathStyle = true
		}
	})

	a := &S3Archiver{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		logger:   logger.Named("s3_archiver"),
	}
	if err := a.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *S3Archiver) ensureBucket(ctx context.Context, region string) error {
	headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := a.client.HeadBucket(headCtx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err == nil {
		return nil
	}

	a.logger.Info("bucket not found, creating", zap.String("bucket", a.bucket))
	input := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := a.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	waiter := s3.NewBucketExistsWaiter(a.client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}, 30*time.Second); err != nil {
		return fmt.Errorf("wait for bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive uploads the stored file under its relative path as object key.
func (a *S3Archiver) Archive(ctx context.Context, stored *Stored, contentType string) error {
	f, err := os.Open(stored.FullPath)
	if err != nil {
		return fmt.Errorf("open upload for archive: %w", err)
	}
	defer f.Close()

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(stored.RelPath),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", stored.RelPath, a.bucket, err)
	}
	return nil
}
