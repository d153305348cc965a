package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/warp/scheme-engine/costing"
)

// ObjectPutter is the slice of the S3 client the sink uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads exported workbooks to one bucket.
type S3Sink struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

// NewS3Sink loads the default AWS config for region and profile. An empty
// profile uses the default credential chain.
func NewS3Sink(ctx context.Context, bucket, region, profile string) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &S3Sink{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: "costing"}, nil
}

// Put renders tbl and uploads it under key. It returns the object key used.
func (s *S3Sink) Put(ctx context.Context, key string, tbl *costing.Table) (string, error) {
	body, err := XLSX(tbl, DefaultSheet)
	if err != nil {
		return "", err
	}
	objectKey := path.Join(s.Prefix, key)
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}
	return objectKey, nil
}
