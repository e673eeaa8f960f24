// Package source checks that the raw event-log and song-catalog data a load
// reads from exists before any statement runs.
//
// s3:// locations are checked with the S3 API; anything else is treated as a
// local path or glob, which is what the DuckDB adapter reads.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/leapstack-labs/dwhetl/internal/config"
)

// S3API is the subset of the S3 client preflight uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// ErrNoS3Client is reported for s3:// sources when no client is configured.
var ErrNoS3Client = errors.New("no S3 client configured")

// Location is a parsed s3:// URI.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// IsS3 reports whether path is an s3:// URI.
func IsS3(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ParseS3URI splits an s3://bucket/key URI.
func ParseS3URI(uri string) (Location, error) {
	if !IsS3(uri) {
		return Location{}, fmt.Errorf("not an s3 URI: %q", uri)
	}
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("s3 URI %q has no bucket", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Result is the outcome of checking one source.
type Result struct {
	Name string
	Path string
	// Found is the number of matching objects seen, capped at one for S3
	// prefixes.
	Found int
	Err   error
}

// OK reports whether the source was found.
func (r Result) OK() bool { return r.Err == nil }

// Checker runs source preflight checks.
type Checker struct {
	s3     S3API
	logger *slog.Logger
}

// NewChecker creates a checker. client may be nil when every source is local.
func NewChecker(client S3API, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checker{s3: client, logger: logger}
}

// Preflight checks the configured sources. The JSONPaths file is optional
// and only checked when set.
func (c *Checker) Preflight(ctx context.Context, src config.SourcesConfig) []Result {
	results := []Result{
		c.CheckPrefix(ctx, "log_data", src.LogData),
		c.CheckPrefix(ctx, "song_data", src.SongData),
	}
	if src.LogJSONPath != "" {
		results = append(results, c.CheckObject(ctx, "log_jsonpath", src.LogJSONPath))
	}
	return results
}

// CheckPrefix verifies that at least one object or file exists under path.
func (c *Checker) CheckPrefix(ctx context.Context, name, path string) Result {
	res := Result{Name: name, Path: path}
	if path == "" {
		res.Err = errors.New("not configured")
		return res
	}

	if !IsS3(path) {
		res.Found, res.Err = globLocal(path)
		return res
	}

	loc, err := c.s3Location(path)
	if err != nil {
		res.Err = err
		return res
	}

	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(loc.Bucket),
		Prefix:  aws.String(loc.Key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		res.Err = fmt.Errorf("failed to list %s: %w", loc, err)
		return res
	}
	if len(out.Contents) == 0 {
		res.Err = fmt.Errorf("no objects under %s", loc)
		return res
	}

	res.Found = len(out.Contents)
	c.logger.Debug("source prefix found", "source", name, "first_key", aws.ToString(out.Contents[0].Key))
	return res
}

// CheckObject verifies that the single object or file at path exists.
func (c *Checker) CheckObject(ctx context.Context, name, path string) Result {
	res := Result{Name: name, Path: path}

	if !IsS3(path) {
		if _, err := os.Stat(path); err != nil {
			res.Err = err
			return res
		}
		res.Found = 1
		return res
	}

	loc, err := c.s3Location(path)
	if err != nil {
		res.Err = err
		return res
	}

	if _, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}); err != nil {
		res.Err = fmt.Errorf("failed to find %s: %w", loc, err)
		return res
	}
	res.Found = 1
	return res
}

func (c *Checker) s3Location(path string) (Location, error) {
	if c.s3 == nil {
		return Location{}, ErrNoS3Client
	}
	return ParseS3URI(path)
}

// globLocal counts the files matching a local path or glob.
func globLocal(pattern string) (int, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no files match %s", pattern)
	}
	return len(matches), nil
}

// NeedsS3 reports whether any configured source lives in S3.
func NeedsS3(src config.SourcesConfig) bool {
	return IsS3(src.LogData) || IsS3(src.SongData) || IsS3(src.LogJSONPath)
}
