/*
Package source fetches images from the network.

Network sources are downloaded in full into a single buffer before decoding
starts. The buffer is bounded; anything larger than the limit is rejected
with ErrTooLarge rather than allocated.
*/
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrTooLarge is returned when an image is larger than the download
	// limit.
	ErrTooLarge = errors.New("source: image too large")
	// ErrUnsupportedScheme is returned for URLs that are neither HTTP(S)
	// nor S3.
	ErrUnsupportedScheme = errors.New("source: unsupported scheme")
)

// S3API is the subset of the S3 client used to fetch objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads images over HTTP(S) or from S3.
type Fetcher struct {
	HTTP *http.Client
	// S3 is used for s3://bucket/key URLs. If nil, a client is created
	// from the default AWS configuration chain on first use.
	S3 S3API
	// S3Endpoint overrides the S3 endpoint, for S3 compatible services.
	S3Endpoint string
}

// NewS3Client returns an S3 client configured from the environment. If
// endpoint is not empty, it is used with path-style addressing.
func NewS3Client(ctx context.Context, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if endpoint != "" {
		opts = append(opts, awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: endpoint,
			}, nil
		})))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = endpoint != ""
	}), nil
}

// Fetch downloads the image at rawurl, which must not be larger than max
// bytes.
func (f *Fetcher) Fetch(ctx context.Context, rawurl string, max int64) ([]byte, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, u, max)
	case "s3":
		return f.fetchS3(ctx, u, max)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL, max int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: %s: %s", u, resp.Status)
	}
	if resp.ContentLength > max {
		return nil, ErrTooLarge
	}

	return readLimited(resp.Body, max)
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL, max int64) ([]byte, error) {
	if f.S3 == nil {
		client, err := NewS3Client(ctx, f.S3Endpoint)
		if err != nil {
			return nil, err
		}
		f.S3 = client
	}

	out, err := f.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	if out.ContentLength > max {
		return nil, ErrTooLarge
	}

	return readLimited(out.Body, max)
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, ErrTooLarge
	}
	return b, nil
}

// ReadStream reads exactly length bytes from an already open stream, such
// as a network connection. length must not be larger than max.
func ReadStream(r io.Reader, length, max int64) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("source: invalid length %d", length)
	}
	if length > max {
		return nil, ErrTooLarge
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
