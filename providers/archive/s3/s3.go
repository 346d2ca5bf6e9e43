// Package s3archive exports prescription audit reports to Amazon S3.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/hengadev/rxseal/internal/prescription"
)

// Uploader is the subset of the S3 client used by Exporter.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Report is the JSON document written for each export.
type Report struct {
	GeneratedAt   time.Time                 `json:"generatedAt"`
	Total         int                       `json:"total"`
	Revoked       int                       `json:"revoked"`
	Unsigned      int                       `json:"unsigned"`
	Prescriptions []prescription.AuditEntry `json:"prescriptions"`
}

// Exporter writes audit reports as JSON objects under a key prefix.
type Exporter struct {
	client Uploader
	bucket string
	prefix string
}

// NewExporter uses client to write into bucket.
func NewExporter(client Uploader, bucket, prefix string) (*Exporter, error) {
	if client == nil {
		return nil, errors.New("s3 client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	return &Exporter{client: client, bucket: bucket, prefix: prefix}, nil
}

// NewExporterFromConfig loads the default AWS configuration (environment,
// shared config, instance role). An empty region keeps the configured one.
//
// Usage:
//
//	exporter, err := s3archive.NewExporterFromConfig(ctx, "eu-west-1", "clinic-audits", "audits/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	location, err := svc.ExportAudit(ctx, admin, exporter)
func NewExporterFromConfig(ctx context.Context, region, bucket, prefix string) (*Exporter, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewExporter(s3.NewFromConfig(cfg), bucket, prefix)
}

// ObjectKey returns the key for a report generated at.
func (e *Exporter) ObjectKey(at time.Time) string {
	name := fmt.Sprintf("audit-%s-%s.json", at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	return path.Join(e.prefix, at.UTC().Format("2006/01/02"), name)
}

// Export uploads the report and returns its s3:// location.
func (e *Exporter) Export(ctx context.Context, entries []prescription.AuditEntry, at time.Time) (string, error) {
	report := Report{
		GeneratedAt:   at.UTC(),
		Total:         len(entries),
		Prescriptions: entries,
	}
	if report.Prescriptions == nil {
		report.Prescriptions = []prescription.AuditEntry{}
	}
	for _, e := range entries {
		if e.IsRevoked {
			report.Revoked++
		}
		if !e.HasSignature {
			report.Unsigned++
		}
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return "", fmt.Errorf("encode audit report: %w", err)
	}

	key := e.ObjectKey(at)
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(e.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body.Bytes()),
		ContentLength:        aws.Int64(int64(body.Len())),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audit report to s3://%s/%s: %w", e.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", e.bucket, key), nil
}
