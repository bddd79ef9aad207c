// Package s3 implements object.ObjectStorage for S3-compatible services,
// including AWS S3, MinIO and Cloudflare R2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"filegate/pkg/object"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const (
	defaultPartSize           = 8 << 20   // 8 MB
	defaultMultipartThreshold = 100 << 20 // 100 MB
	minPartSize               = 5 << 20   // S3 minimum for every part but the last

	maxCopySize     = 5 << 30   // largest source a single CopyObject accepts
	minCopyPartSize = 512 << 20 // 512 MB
	maxParts        = 10000
)

// Config holds S3 connection details.
type Config struct {
	// AccountID selects the Cloudflare R2 endpoint when EndpointOverride is empty.
	AccountID        string
	AccessKey        string
	SecretAccessKey  string
	Region           string
	EndpointOverride string
	UsePathStyle     bool
	// PartSize and MultipartThreshold default to 8 MB and 100 MB.
	PartSize           int64
	MultipartThreshold int64
}

// Storage implements object.ObjectStorage for S3. Containers are buckets.
type Storage struct {
	client    *s3.Client
	region    string
	partSize  int64
	threshold int64
}

// Init bootstraps the S3 client using static credentials.
func (s *Storage) Init(ctx context.Context, param any) error {
	cfg, ok := param.(Config)
	if !ok {
		if p, ok := param.(*Config); ok && p != nil {
			cfg = *p
		} else {
			return fmt.Errorf("s3: unexpected config type %T", param)
		}
	}

	if cfg.Region == "" {
		if cfg.AccountID != "" {
			cfg.Region = "auto"
		} else {
			cfg.Region = "us-east-1"
		}
	}
	if cfg.PartSize < minPartSize {
		cfg.PartSize = defaultPartSize
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = defaultMultipartThreshold
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("s3: load config: %w", err)
	}

	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		base := cfg.EndpointOverride
		if base == "" && cfg.AccountID != "" {
			base = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
		}
		if base != "" {
			o.BaseEndpoint = aws.String(base)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	s.region = cfg.Region
	s.partSize = cfg.PartSize
	s.threshold = cfg.MultipartThreshold
	return nil
}

// Close cleans up resources; no-op for S3.
func (s *Storage) Close(_ context.Context) error {
	return nil
}

// EnsureContainer creates the bucket unless it is already reachable.
func (s *Storage) EnsureContainer(ctx context.Context, container string) error {
	if err := s.ensureClient(); err != nil {
		return err
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(container)})
	if err == nil {
		return nil
	}
	if !errors.Is(mapError(err), object.ErrNotFound) {
		return fmt.Errorf("s3: head bucket %s: %w", container, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(container)}
	if s.region != "us-east-1" && s.region != "auto" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("s3: create bucket %s: %w", container, err)
	}
	return nil
}

// Put uploads the full object body. Bodies larger than the multipart threshold,
// or of unknown size, are streamed as a multipart upload.
func (s *Storage) Put(ctx context.Context, container, key string, r io.Reader, sizeHint int64, contentType string) (object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, err
	}

	if sizeHint < 0 || sizeHint > s.threshold {
		return s.multipartPut(ctx, container, key, r, contentType)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(container),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(sizeHint),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return object.Object{}, mapError(err)
	}

	return s.Stat(ctx, container, key)
}

// multipartPut streams large uploads in parts and aborts the upload on failure.
func (s *Storage) multipartPut(ctx context.Context, container, key string, r io.Reader, contentType string) (object.Object, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	createResp, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return object.Object{}, mapError(err)
	}

	uploadID := aws.ToString(createResp.UploadId)
	abort := func(cause error) (object.Object, error) {
		_, abortErr := s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(container),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		return object.Object{}, errors.Join(cause, abortErr)
	}

	var completedParts []types.CompletedPart
	buf := make([]byte, s.partSize)
	partNum := int32(1)

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 || partNum == 1 {
			partResp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(container),
				Key:        aws.String(key),
				UploadId:   aws.String(uploadID),
				PartNumber: aws.Int32(partNum),
				Body:       bytes.NewReader(buf[:n]),
			})
			if err != nil {
				return abort(mapError(err))
			}

			completedParts = append(completedParts, types.CompletedPart{
				ETag:       partResp.ETag,
				PartNumber: aws.Int32(partNum),
			})
			partNum++
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return abort(fmt.Errorf("s3: read multipart chunk: %w", readErr))
		}
	}

	if _, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(container),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	}); err != nil {
		return abort(mapError(err))
	}

	return s.Stat(ctx, container, key)
}

// SetMeta replaces the user metadata by copying the object onto itself.
// Objects above the single copy limit are copied part by part.
func (s *Storage) SetMeta(ctx context.Context, container, key string, meta map[string]string) error {
	current, err := s.Stat(ctx, container, key)
	if err != nil {
		return err
	}
	if current.Size > maxCopySize {
		return s.multipartCopy(ctx, current, meta)
	}

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(container),
		Key:               aws.String(key),
		CopySource:        aws.String(copySource(container, key)),
		Metadata:          object.CloneMeta(meta),
		MetadataDirective: types.MetadataDirectiveReplace,
	}
	if current.ContentType != "" {
		input.ContentType = aws.String(current.ContentType)
	}

	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return mapError(err)
	}
	return nil
}

// multipartCopy rewrites a large object onto itself with new metadata using
// UploadPartCopy. The original stays in place if any part fails.
func (s *Storage) multipartCopy(ctx context.Context, current object.Object, meta map[string]string) error {
	container, key := current.Container, current.Key
	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(container),
		Key:      aws.String(key),
		Metadata: object.CloneMeta(meta),
	}
	if current.ContentType != "" {
		input.ContentType = aws.String(current.ContentType)
	}
	createResp, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return mapError(err)
	}

	uploadID := aws.ToString(createResp.UploadId)
	abort := func(cause error) error {
		_, abortErr := s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(container),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		return errors.Join(cause, abortErr)
	}

	ranges := copyRanges(current.Size)
	parts := make([]types.CompletedPart, 0, len(ranges))
	for i, rng := range ranges {
		partNum := int32(i + 1)
		resp, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          aws.String(container),
			Key:             aws.String(key),
			UploadId:        aws.String(uploadID),
			PartNumber:      aws.Int32(partNum),
			CopySource:      aws.String(copySource(container, key)),
			CopySourceRange: aws.String(rng),
			// Guard against the source changing between parts.
			CopySourceIfMatch: aws.String(current.ETag),
		})
		if err != nil {
			return abort(mapError(err))
		}
		var etag *string
		if resp.CopyPartResult != nil {
			etag = resp.CopyPartResult.ETag
		}
		parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: aws.Int32(partNum)})
	}

	if _, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(container),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}); err != nil {
		return abort(mapError(err))
	}
	return nil
}

// copyPartSize picks a part size that keeps the copy within the part limit.
func copyPartSize(size int64) int64 {
	part := int64(minCopyPartSize)
	if need := (size + maxParts - 1) / maxParts; need > part {
		part = need
	}
	return part
}

// copyRanges splits size bytes into inclusive HTTP byte ranges.
func copyRanges(size int64) []string {
	part := copyPartSize(size)
	var ranges []string
	for start := int64(0); start < size; start += part {
		end := min(start+part, size) - 1
		ranges = append(ranges, fmt.Sprintf("bytes=%d-%d", start, end))
	}
	return ranges
}

// Get fetches metadata plus a streaming reader.
func (s *Storage) Get(ctx context.Context, container, key string) (object.Object, io.ReadCloser, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return object.Object{}, nil, mapError(err)
	}

	return responseToObject(container, key, resp), resp.Body, nil
}

// Stat returns metadata only.
func (s *Storage) Stat(ctx context.Context, container, key string) (object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, err
	}

	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return object.Object{}, mapError(err)
	}

	return headToObject(container, key, resp), nil
}

// List pages through the bucket. S3 listings carry no user metadata, so every
// entry is completed with a HEAD request.
func (s *Storage) List(ctx context.Context, container, prefix string) ([]object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return nil, err
	}

	var objects []object.Object
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(container),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if errors.Is(mapError(err), object.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("s3: list %s: %w", container, err)
		}
		for _, item := range page.Contents {
			obj, err := s.Stat(ctx, container, aws.ToString(item.Key))
			if errors.Is(err, object.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// Delete removes an object.
func (s *Storage) Delete(ctx context.Context, container, key string) error {
	if err := s.ensureClient(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	return mapError(err)
}

func (s *Storage) ensureClient() error {
	if s.client == nil {
		return errors.New("s3: client not initialized")
	}
	return nil
}

func copySource(container, key string) string {
	return container + "/" + (&url.URL{Path: key}).EscapedPath()
}

func responseToObject(container, key string, resp *s3.GetObjectOutput) object.Object {
	return object.Object{
		Container:    container,
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         aws.ToString(resp.ETag),
		ContentType:  aws.ToString(resp.ContentType),
		LastModified: aws.ToTime(resp.LastModified),
		CustomMeta:   cloneMeta(resp.Metadata),
	}
}

func headToObject(container, key string, resp *s3.HeadObjectOutput) object.Object {
	return object.Object{
		Container:    container,
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         aws.ToString(resp.ETag),
		ContentType:  aws.ToString(resp.ContentType),
		LastModified: aws.ToTime(resp.LastModified),
		CustomMeta:   cloneMeta(resp.Metadata),
	}
}

// cloneMeta lowercases keys; S3 gateways differ in the case they return.
func cloneMeta(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range maps.All(in) {
		out[strings.ToLower(k)] = v
	}
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return object.ErrNotFound
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return object.ErrNotFound
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return object.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToLower(apiErr.ErrorCode()) {
		case "nosuchkey", "nosuchbucket", "notfound", "404":
			return object.ErrNotFound
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return object.ErrNotFound
	}

	return err
}

// Ensure Storage implements ObjectStorage interface.
var _ object.ObjectStorage = (*Storage)(nil)
