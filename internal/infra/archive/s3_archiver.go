// Package archive stores finished bulk operation results in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/klauspost/compress/gzip"

	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/internal/metrics"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/logger"
)

// objectPutter is the subset of *s3.Client used by the archiver.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each result as a gzip-compressed JSON object.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	logger *logger.Logger
}

// NewS3Archiver builds an archiver from the archive configuration.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	switch cfg.AuthType {
	case "keys":
		if cfg.AccessKey != "" {
			awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			))
		}
	case "sts_role":
		baseCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		creds := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(baseCfg), cfg.RoleARN)
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(creds)))
	default:
		return nil, fmt.Errorf("unsupported archive auth type %q", cfg.AuthType)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO
		})
	}

	return newS3Archiver(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string, log *logger.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: log.With("component", "s3_archiver"),
	}
}

// Archive uploads result. The key is {prefix}/{yyyy}/{mm}/{dd}/{id}.json.gz,
// dated by the operation's finish time.
func (a *S3Archiver) Archive(ctx context.Context, result bulkop.Result) error {
	body, err := encodeResult(result)
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("error").Inc()
		return err
	}

	key := objectKey(a.prefix, result)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			"operation-id": result.OperationID,
			"actor-id":     result.ActorID,
			"state":        string(result.State),
		},
	})
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	metrics.ArchiveUploadsTotal.WithLabelValues("success").Inc()
	a.logger.Debug("bulk operation result archived",
		"operation_id", result.OperationID,
		"key", key,
		"bytes", len(body),
	)
	return nil
}

func objectKey(prefix string, result bulkop.Result) string {
	at := result.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return path.Join(prefix, at.Format("2006"), at.Format("01"), at.Format("02"), result.OperationID+".json.gz")
}

func encodeResult(result bulkop.Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(result); err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress result: %w", err)
	}
	return buf.Bytes(), nil
}
