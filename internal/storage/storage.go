// Package storage is the engine's bucket/object adapter: a uniform
// bucket and object surface over an S3-compatible store, used for
// kubeconfig persistence and Loki log buckets. The AWS S3 SDK backs the
// AWS variant; other cloud variants wrap their own SDK behind the same
// Client-shaped interface.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/imamik/clusterforge/internal/eventlog"
)

// MinTTL is the floor bucket lifecycle retention; providers that don't
// support sub-day retention have any smaller TTL silently rounded up to
// this.
const MinTTL = 24 * time.Hour

// markForDeletionTag is the tag key used by the MarkForDeletion
// strategy; an async reaper elsewhere is expected to sweep tagged
// buckets.
const markForDeletionTag = "clusterforge-mark-for-deletion"

// DeleteStrategy selects how DeleteBucket removes a bucket.
type DeleteStrategy int

const (
	// HardDelete empties and removes the bucket immediately.
	HardDelete DeleteStrategy = iota
	// MarkForDeletion tags the bucket instead of removing it, for an
	// out-of-process async reaper to pick up later.
	MarkForDeletion
)

// BucketSpec is the desired state passed to CreateBucket/UpdateBucket.
type BucketSpec struct {
	Name       string
	Region     string
	TTL        time.Duration
	Versioning bool
	Labels     map[string]string
}

// Bucket is the observed state returned by CreateBucket/GetBucket.
type Bucket struct {
	Name       string
	Region     string
	TTL        time.Duration
	Versioning bool
	Labels     map[string]string
}

// Client wraps an AWS S3 client for the bucket/object adapter surface.
type Client struct {
	s3     *s3.Client
	region string
}

// NewClient builds a Client from static credentials and an endpoint
// override, for any S3-compatible store.
func NewClient(ctx context.Context, endpoint, region, accessKey, secretKey string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Client{s3: client, region: region}, nil
}

// NewFromAWSClient wraps an already-constructed *s3.Client, for callers
// (and tests) that build their own aws.Config.
func NewFromAWSClient(c *s3.Client, region string) *Client {
	return &Client{s3: c, region: region}
}

// BucketExists reports whether name exists and is accessible.
func (c *Client) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, objectStorageError(err, "checking bucket %s", name)
	}
	return true, nil
}

// CreateBucket creates spec.Name, idempotently: if it already exists,
// its current observed state is returned instead of erroring.
func (c *Client) CreateBucket(ctx context.Context, spec BucketSpec) (Bucket, error) {
	spec.TTL = roundUpTTL(spec.TTL)

	_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(spec.Name)})
	if err != nil && !isBucketAlreadyOwnedByYou(err) {
		return Bucket{}, objectStorageError(err, "creating bucket %s", spec.Name)
	}

	if err := c.applyBucketState(ctx, spec); err != nil {
		return Bucket{}, err
	}
	return c.GetBucket(ctx, spec.Name)
}

// UpdateBucket reapplies spec's versioning, lifecycle TTL, and labels to
// an existing bucket.
func (c *Client) UpdateBucket(ctx context.Context, spec BucketSpec) (Bucket, error) {
	spec.TTL = roundUpTTL(spec.TTL)
	if err := c.applyBucketState(ctx, spec); err != nil {
		return Bucket{}, err
	}
	return c.GetBucket(ctx, spec.Name)
}

func (c *Client) applyBucketState(ctx context.Context, spec BucketSpec) error {
	if spec.Versioning {
		_, err := c.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket:                  aws.String(spec.Name),
			VersioningConfiguration: &s3types.VersioningConfiguration{Status: s3types.BucketVersioningStatusEnabled},
		})
		if err != nil {
			return objectStorageError(err, "enabling versioning on %s", spec.Name)
		}
	}

	if spec.TTL > 0 {
		days := int32(spec.TTL / (24 * time.Hour))
		if days < 1 {
			days = 1
		}
		_, err := c.s3.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
			Bucket: aws.String(spec.Name),
			LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
				Rules: []s3types.LifecycleRule{{
					ID:         aws.String("clusterforge-ttl"),
					Status:     s3types.ExpirationStatusEnabled,
					Filter:     &s3types.LifecycleRuleFilter{Prefix: aws.String("")},
					Expiration: &s3types.LifecycleExpiration{Days: aws.Int32(days)},
				}},
			},
		})
		if err != nil {
			return objectStorageError(err, "setting lifecycle ttl on %s", spec.Name)
		}
	}

	if len(spec.Labels) > 0 {
		var tagSet []s3types.Tag
		for k, v := range spec.Labels {
			tagSet = append(tagSet, s3types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		_, err := c.s3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket:  aws.String(spec.Name),
			Tagging: &s3types.Tagging{TagSet: tagSet},
		})
		if err != nil {
			return objectStorageError(err, "tagging bucket %s", spec.Name)
		}
	}
	return nil
}

// GetBucket reconstructs a bucket's observed state from its versioning,
// lifecycle, and tagging configuration.
func (c *Client) GetBucket(ctx context.Context, name string) (Bucket, error) {
	exists, err := c.BucketExists(ctx, name)
	if err != nil {
		return Bucket{}, err
	}
	if !exists {
		return Bucket{}, eventlog.Newf(eventlog.TagObjectStorageError, nil, "bucket %s not found", name).WithSubkind("NotFound")
	}

	b := Bucket{Name: name, Region: c.region}

	if v, err := c.s3.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(name)}); err == nil {
		b.Versioning = v.Status == s3types.BucketVersioningStatusEnabled
	}

	if lc, err := c.s3.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{Bucket: aws.String(name)}); err == nil {
		for _, rule := range lc.Rules {
			if rule.Expiration != nil && rule.Expiration.Days != nil {
				b.TTL = time.Duration(*rule.Expiration.Days) * 24 * time.Hour
				break
			}
		}
	}

	if tags, err := c.s3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)}); err == nil {
		labels := make(map[string]string, len(tags.TagSet))
		for _, t := range tags.TagSet {
			if t.Key != nil && t.Value != nil {
				labels[*t.Key] = *t.Value
			}
		}
		b.Labels = labels
	}

	return b, nil
}

// DeleteBucket removes name per strategy.
func (c *Client) DeleteBucket(ctx context.Context, name string, strategy DeleteStrategy) error {
	switch strategy {
	case MarkForDeletion:
		_, err := c.s3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket:  aws.String(name),
			Tagging: &s3types.Tagging{TagSet: []s3types.Tag{{Key: aws.String(markForDeletionTag), Value: aws.String("true")}}},
		})
		if err != nil {
			return objectStorageError(err, "marking bucket %s for deletion", name)
		}
		return nil

	default: // HardDelete
		keys, err := c.ListObjects(ctx, name, "")
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := c.DeleteObject(ctx, name, key); err != nil {
				return err
			}
		}
		_, err = c.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
		if err != nil && !isNotFoundError(err) {
			return objectStorageError(err, "deleting bucket %s", name)
		}
		return nil
	}
}

// PutObject uploads data to bucket/key with tags.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, tags map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if len(tags) > 0 {
		input.Tagging = aws.String(encodeTagging(tags))
	}
	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return objectStorageError(err, "putting object %s/%s", bucket, key)
	}
	return nil
}

// GetObject downloads bucket/key.
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, objectStorageError(err, "getting object %s/%s", bucket, key)
	}
	defer result.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, objectStorageError(err, "reading object body %s/%s", bucket, key)
	}
	return buf.Bytes(), nil
}

// DeleteObject removes bucket/key, idempotently.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil && !isNotFoundError(err) {
		return objectStorageError(err, "deleting object %s/%s", bucket, key)
	}
	return nil
}

// ListObjects lists keys under prefix in bucket.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	var keys []string
	for {
		out, err := c.s3.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, objectStorageError(err, "listing objects in %s", bucket)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return keys, nil
}

func roundUpTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

func encodeTagging(tags map[string]string) string {
	var buf bytes.Buffer
	first := true
	for k, v := range tags {
		if !first {
			buf.WriteByte('&')
		}
		first = false
		fmt.Fprintf(&buf, "%s=%s", k, v)
	}
	return buf.String()
}

func objectStorageError(cause error, format string, args ...any) error {
	return eventlog.Newf(eventlog.TagObjectStorageError, cause, format, args...).WithSubkind(classifyS3Subkind(cause))
}

func classifyS3Subkind(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return "Generic"
}

func isBucketAlreadyOwnedByYou(err error) bool {
	if err == nil {
		return false
	}
	var baoby *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}
	var bae *s3types.BucketAlreadyExists
	if errors.As(err, &bae) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
	}
	return false
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchBucket" || code == "404"
	}
	return false
}
