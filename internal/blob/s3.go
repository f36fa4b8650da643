package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIO 等兼容服务的地址，为空则使用 AWS 默认
	AccessKey string
	SecretKey string
	PublicURL string // 对外访问前缀；为空时拼接 Endpoint/Bucket
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 把图片上传到 S3 兼容存储。
type S3 struct {
	client    putObjectAPI
	bucket    string
	publicURL string
}

func NewS3(ctx context.Context, c S3Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	public := c.PublicURL
	if public == "" {
		if c.Endpoint != "" {
			public = strings.TrimRight(c.Endpoint, "/") + "/" + c.Bucket
		} else {
			public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, c.Region)
		}
	}
	return &S3{client: client, bucket: c.Bucket, publicURL: strings.TrimRight(public, "/")}, nil
}

func (s *S3) Upload(ctx context.Context, ref string) (string, error) {
	if IsRemote(ref) {
		return ref, nil
	}
	img, err := DecodeDataURL(ref)
	if err != nil {
		return "", err
	}
	key := objectKey(img.Extension, time.Now().UTC())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.MIME),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object: %v", ErrUploadFailed, err)
	}
	return s.publicURL + "/" + key, nil
}
