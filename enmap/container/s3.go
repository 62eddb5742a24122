package container

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// defaultS3Region is where the EOC distributes EnMAP archives.
const defaultS3Region = "eu-central-1"

type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

type s3Lister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config configures access to an S3 compatible endpoint. Without an
// access key requests are sent anonymously.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	PartSize        int64
	Concurrency     int
}

// S3 is a Store backed by the AWS SDK.
type S3 struct {
	cfg        S3Config
	mu         sync.Mutex
	awsCfg     aws.Config
	lister     s3Lister
	downloader s3Downloader

	newClient     func(aws.Config, S3Config) s3Lister
	newDownloader func(aws.Config, s3Lister) s3Downloader
}

// NewS3 builds the SDK clients lazily on first use.
func NewS3(cfg S3Config) *S3 {
	if cfg.Region == "" {
		cfg.Region = defaultS3Region
	}
	return &S3{
		cfg:           cfg,
		newClient:     defaultS3Client,
		newDownloader: defaultS3Downloader,
	}
}

func defaultS3Client(awsCfg aws.Config, cfg S3Config) s3Lister {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
}

func defaultS3Downloader(_ aws.Config, lister s3Lister) s3Downloader {
	client, ok := lister.(*s3.Client)
	if !ok {
		return nil
	}
	return manager.NewDownloader(client)
}

// Scheme implements Store.
func (s *S3) Scheme() string {
	return "s3"
}

func (s *S3) ensureClients() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lister != nil && s.downloader != nil {
		return nil
	}
	s.awsCfg = aws.Config{Region: s.cfg.Region}
	if s.cfg.AccessKeyID != "" {
		s.awsCfg.Credentials = credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, s.cfg.SessionToken)
	} else {
		s.awsCfg.Credentials = aws.AnonymousCredentials{}
	}
	s.lister = s.newClient(s.awsCfg, s.cfg)
	s.downloader = s.newDownloader(s.awsCfg, s.lister)
	if s.lister == nil || s.downloader == nil {
		return fmt.Errorf("container: s3 client unavailable for region %s", s.cfg.Region)
	}
	return nil
}

// List pages through all keys below prefix.
func (s *S3) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if err := s.ensureClients(); err != nil {
		return nil, err
	}
	p := s3.NewListObjectsV2Paginator(s.lister, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	var objects []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
		}
	}
	return objects, nil
}

// Fetch downloads one object with the multipart downloader.
func (s *S3) Fetch(ctx context.Context, bucket, key string, w Writer) (int64, error) {
	if err := s.ensureClients(); err != nil {
		return 0, err
	}
	return s.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(d *manager.Downloader) {
		if s.cfg.PartSize > 0 {
			d.PartSize = s.cfg.PartSize
		}
		if s.cfg.Concurrency > 0 {
			d.Concurrency = s.cfg.Concurrency
		}
	})
}
