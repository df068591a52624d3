package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/config"
)

// Archive mirrors stored media into an S3-compatible bucket for long-term
// retention. All operations are best-effort from the caller's point of view;
// the local copy remains authoritative.
type Archive struct {
	client *s3.Client
	cfg    config.S3Config
}

// NewArchive builds the archive client, or returns nil when archiving is
// disabled in configuration.
func NewArchive(cfg config.S3Config) (*Archive, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 credentials not configured")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket not configured")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, HostnameImmutable: cfg.PathStyle}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			})
	}

	// Buckets with dots break virtual-hosted TLS, so force path-style there.
	usePathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("Media archive initialized")
	return &Archive{client: client, cfg: cfg}, nil
}

// ObjectKey derives the archive key for a stored file, partitioned by chat
// and date so retention sweeps stay cheap.
func (a *Archive) ObjectKey(chatJID, filename string) string {
	chatJID = strings.ReplaceAll(chatJID, "@", "_")
	chatJID = strings.ReplaceAll(chatJID, ":", "_")
	now := time.Now().UTC()
	return fmt.Sprintf("chats/%s/%s/%s", chatJID, now.Format("2006/01/02"), filename)
}

// Put uploads one object. Content type defaults to octet-stream.
func (a *Archive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:       aws.String(a.cfg.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	}
	if strings.HasPrefix(contentType, "image/") || contentType == "application/pdf" {
		input.ContentDisposition = aws.String("inline")
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("Media archived to S3")
	return nil
}

// TestConnection lists one object to verify bucket access.
func (a *Archive) TestConnection(ctx context.Context) error {
	_, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.cfg.Bucket),
		MaxKeys: aws.Int32(1),
	})
	return err
}
