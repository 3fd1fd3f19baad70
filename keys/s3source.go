package keys

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of the S3 client S3Source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the JWKS documents from an S3 compatible bucket.
type S3Source struct {
	Client     ObjectGetter
	Bucket     string
	PublicKey  string
	PrivateKey string
}

// S3Config holds connection settings for NewS3Client.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// s3 client seams, replaced in tests.
var (
	loadAWSConfig = awsconfig.LoadDefaultConfig
	newS3Client   = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectGetter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds an S3 client. Static credentials are used when both
// AccessKeyID and SecretAccessKey are set, otherwise the default chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (ObjectGetter, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := loadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("keys: load aws config: %w", err)
	}
	return newS3Client(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s S3Source) Load(ctx context.Context) ([]byte, []byte, error) {
	if s.Client == nil {
		return nil, nil, fmt.Errorf("%w: s3 client not configured", ErrKeyLoad)
	}
	pubKey, privKey := s.PublicKey, s.PrivateKey
	if pubKey == "" {
		pubKey = DefaultPublicFile
	}
	if privKey == "" {
		privKey = DefaultPrivateFile
	}
	pub, err := s.get(ctx, pubKey)
	if err != nil {
		return nil, nil, err
	}
	priv, err := s.get(ctx, privKey)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (s S3Source) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 get %s/%s: %v", ErrKeyLoad, s.Bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3 read %s/%s: %v", ErrKeyLoad, s.Bucket, key, err)
	}
	return data, nil
}
