// Package objstore reads and writes whole objects addressed by URI.
//
// Supported locations:
//   - local paths and file:// URIs
//   - s3://bucket/key through the AWS SDK with the s3 transfer manager
//   - gs://bucket/object through the Cloud Storage client
//
// Remote clients are created on first use and shared by all calls.
package objstore

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/logger"
)

// Schemes
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
	SchemeGCS  = "gs"
)

const defaultPartSize = 8 * 1024 * 1024

// Location is a parsed object URI
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// String formats the location as a URI, or a plain path for local files
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Parse splits uri into scheme, bucket and key. Strings without a scheme
// are local paths.
func Parse(uri string) (Location, error) {
	if !strings.Contains(uri, "://") {
		if uri == "" {
			return Location{}, errors.New(errors.ErrorTypeConfig, "empty path")
		}
		return Location{Scheme: SchemeFile, Key: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid URI").WithDetail("uri", uri)
	}
	switch u.Scheme {
	case SchemeFile:
		return Location{Scheme: SchemeFile, Key: u.Host + u.Path}, nil
	case SchemeS3, SchemeGCS:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, errors.New(errors.ErrorTypeConfig, "object URI needs a bucket and a key").WithDetail("uri", uri)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
	}
	return Location{}, errors.New(errors.ErrorTypeConfig, "unsupported URI scheme").
		WithDetail("uri", uri).
		WithDetail("scheme", u.Scheme)
}

// Store reads and writes objects
type Store struct {
	cfg    config.ObjectStoreConfig
	logger *zap.Logger

	mu         sync.Mutex
	s3Client   *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
	gcsClient  *gcs.Client
}

// New creates a Store. No remote connection is made until an s3:// or
// gs:// location is used.
func New(cfg config.ObjectStoreConfig, log *zap.Logger) *Store {
	if log == nil {
		log = logger.Get()
	}
	return &Store{cfg: cfg, logger: log.With(zap.String("component", "objstore"))}
}

// Open returns a reader over the object at uri
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case SchemeFile:
		f, err := os.Open(loc.Key) //nolint:gosec // G304: paths come from the analysis configuration
		if err != nil {
			return nil, ioError(err, "cannot open file", uri)
		}
		return f, nil

	case SchemeS3:
		client, _, _, err := s.s3Clients(ctx)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			return nil, ioError(err, "cannot get object", uri)
		}
		return out.Body, nil

	case SchemeGCS:
		client, err := s.gcs(ctx)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
		if err != nil {
			return nil, ioError(err, "cannot read object", uri)
		}
		return r, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported scheme %q", loc.Scheme)
}

// Get reads the whole object at uri
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}

	if loc.Scheme == SchemeS3 {
		_, downloader, _, err := s.s3Clients(ctx)
		if err != nil {
			return nil, err
		}
		buf := manager.NewWriteAtBuffer(nil)
		n, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			return nil, ioError(err, "cannot download object", uri)
		}
		s.logger.Debug("object downloaded", zap.String("uri", uri), zap.Int64("bytes", n))
		return buf.Bytes(), nil
	}

	r, err := s.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ioError(err, "cannot read object", uri)
	}
	return data, nil
}

// Put writes data to uri, replacing any existing object. Local parent
// directories are created as needed.
func (s *Store) Put(ctx context.Context, uri string, data []byte) error {
	loc, err := Parse(uri)
	if err != nil {
		return err
	}

	switch loc.Scheme {
	case SchemeFile:
		if dir := filepath.Dir(loc.Key); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return ioError(err, "cannot create directory", uri)
			}
		}
		if err := os.WriteFile(loc.Key, data, 0o644); err != nil { //nolint:gosec
			return ioError(err, "cannot write file", uri)
		}

	case SchemeS3:
		_, _, uploader, err := s.s3Clients(ctx)
		if err != nil {
			return err
		}
		if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
			Body:   bytes.NewReader(data),
		}); err != nil {
			return ioError(err, "cannot upload object", uri)
		}

	case SchemeGCS:
		client, err := s.gcs(ctx)
		if err != nil {
			return err
		}
		w := client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return ioError(err, "cannot write object", uri)
		}
		if err := w.Close(); err != nil {
			return ioError(err, "cannot write object", uri)
		}
	}

	s.logger.Debug("object written", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return nil
}

// Close releases remote clients
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcsClient != nil {
		err := s.gcsClient.Close()
		s.gcsClient = nil
		return err
	}
	return nil
}

func (s *Store) s3Clients(ctx context.Context) (*s3.Client, *manager.Downloader, *manager.Uploader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3Client != nil {
		return s.s3Client, s.downloader, s.uploader, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s.cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrorTypeConfig, "cannot load AWS configuration")
	}

	s.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	s.downloader = manager.NewDownloader(s.s3Client, func(d *manager.Downloader) {
		d.PartSize = defaultPartSize
	})
	s.uploader = manager.NewUploader(s.s3Client, func(u *manager.Uploader) {
		u.PartSize = defaultPartSize
	})
	s.logger.Info("s3 client initialized", zap.String("region", awsCfg.Region))
	return s.s3Client, s.downloader, s.uploader, nil
}

func (s *Store) gcs(ctx context.Context) (*gcs.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcsClient != nil {
		return s.gcsClient, nil
	}

	var opts []option.ClientOption
	if s.cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.cfg.GCSCredentialsFile))
	}
	if s.cfg.GCSAnonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "cannot create GCS client")
	}
	s.gcsClient = client
	s.logger.Info("gcs client initialized")
	return client, nil
}

func ioError(err error, msg, uri string) error {
	return errors.Wrap(err, errors.ErrorTypeIO, msg).WithDetail("uri", uri)
}
