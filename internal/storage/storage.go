// Package storage persists model artifacts on local disk or in an S3 compatible object store.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is a flat, name addressed blob store. Names are forward slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the named object. Missing objects yield an error wrapping fs.ErrNotExist.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put replaces the named object.
	Put(ctx context.Context, name string, data []byte) error
	// Exists reports whether the named object exists.
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes the named object. Missing objects are not an error.
	Delete(ctx context.Context, name string) error
	// String describes the location for logs and model info.
	String() string
}

// S3Options configures the S3 backend beyond what the default AWS configuration chain provides.
type S3Options struct {
	// Endpoint overrides the service endpoint, for MinIO or other compatible stores.
	Endpoint string
	// Region overrides the configured region.
	Region string
	// PathStyle forces path style addressing.
	PathStyle bool
}

// Open returns a Store for location: "s3://bucket/prefix" selects S3, anything else is a local directory.
func Open(ctx context.Context, location string, opts S3Options) (Store, error) {
	if !strings.HasPrefix(location, "s3://") {
		return NewLocal(location)
	}

	parsed, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid store location %q: %w", location, err)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid store location %q: missing bucket", location)
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}

		o.UsePathStyle = opts.PathStyle
	})

	return NewS3(client, parsed.Host, strings.Trim(parsed.Path, "/")), nil
}
