package sink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/lo"

	"flakereport/internal/reshape"
)

// S3Config configures the object storage client. Empty credentials fall
// back to the default AWS credential chain.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads one CSV object per report and reference date
type S3 struct {
	client objectPutter
	bucket string
	prefix string
	keys   []string
}

// NewS3 creates an S3 (or S3-compatible) sink
func NewS3(ctx context.Context, bucket, prefix string, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, writeFailed("s3://"+bucket, fmt.Errorf("load AWS config: %w", err))
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return newS3WithClient(client, bucket, prefix), nil
}

func newS3WithClient(client objectPutter, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) Name() string { return "s3" }

// Keys returns the object keys written so far
func (s *S3) Keys() []string {
	return s.keys
}

func (s *S3) Write(ctx context.Context, rows []reshape.Row) error {
	groups := lo.GroupBy(rows, func(r reshape.Row) string {
		return path.Join(s.prefix, r.Report, formatDate(r.ReportDate)+".csv")
	})

	// upload in first-seen order
	order := lo.Uniq(lo.Map(rows, func(r reshape.Row, _ int) string {
		return path.Join(s.prefix, r.Report, formatDate(r.ReportDate)+".csv")
	}))

	for _, key := range order {
		data, err := encodeCSV(groups[key])
		if err != nil {
			return writeFailed("s3://"+s.bucket, err)
		}

		sum := sha256.Sum256(data)
		checksum := hex.EncodeToString(sum[:])

		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String("text/csv"),
			ContentLength: aws.Int64(int64(len(data))),
			Metadata: map[string]string{
				"checksum": checksum,
				"rows":     fmt.Sprintf("%d", len(groups[key])),
			},
		})
		if err != nil {
			return writeFailed("s3://"+s.bucket, fmt.Errorf("upload %s: %w", key, err)).
				WithContext("key", key)
		}
		s.keys = append(s.keys, key)
	}
	return nil
}

func (s *S3) Close() error { return nil }

func encodeCSV(rows []reshape.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(Record(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
