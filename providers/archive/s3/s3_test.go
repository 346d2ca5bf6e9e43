package s3archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/rxseal/internal/prescription"
)

// mockS3Client implements Uploader for testing
type mockS3Client struct {
	putObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	input         *s3.PutObjectInput
	uploadedData  []byte
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params, optFns...)
	}
	m.input = params
	if params.Body != nil {
		data, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
		m.uploadedData = data
	}
	return &s3.PutObjectOutput{}, nil
}

func TestNewExporter(t *testing.T) {
	_, err := NewExporter(nil, "bucket", "")
	assert.Error(t, err)
	_, err = NewExporter(&mockS3Client{}, "", "")
	assert.Error(t, err)

	exporter, err := NewExporter(&mockS3Client{}, "bucket", "audits/")
	require.NoError(t, err)
	assert.NotNil(t, exporter)
}

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()
	client := &mockS3Client{}
	exporter, err := NewExporter(client, "clinic-audits", "audits/")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	entries := []prescription.AuditEntry{
		{AppointmentID: "a1", PatientName: "Jane Roe", DoctorID: "doc-1", Date: at, HasSignature: true},
		{AppointmentID: "a2", PatientName: "John Doe", DoctorID: "doc-2", Date: at, IsRevoked: true},
	}

	location, err := exporter.Export(ctx, entries, at)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, "s3://clinic-audits/audits/2024/03/01/audit-20240301T123000Z-"), location)
	assert.True(t, strings.HasSuffix(location, ".json"))

	require.NotNil(t, client.input)
	assert.Equal(t, "clinic-audits", aws.ToString(client.input.Bucket))
	assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))
	assert.Equal(t, types.ServerSideEncryptionAes256, client.input.ServerSideEncryption)
	assert.Equal(t, int64(len(client.uploadedData)), aws.ToInt64(client.input.ContentLength))

	var report Report
	require.NoError(t, json.Unmarshal(client.uploadedData, &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Revoked)
	assert.Equal(t, 1, report.Unsigned)
	assert.Equal(t, at, report.GeneratedAt)
	assert.Equal(t, "a2", report.Prescriptions[1].AppointmentID)
}

func TestExporter_ExportEmpty(t *testing.T) {
	client := &mockS3Client{}
	exporter, err := NewExporter(client, "bucket", "")
	require.NoError(t, err)

	_, err = exporter.Export(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(client.uploadedData), `"prescriptions": []`)
}

func TestExporter_UploadError(t *testing.T) {
	client := &mockS3Client{
		putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	exporter, err := NewExporter(client, "bucket", "audits")
	require.NoError(t, err)

	_, err = exporter.Export(context.Background(), nil, time.Now())
	assert.ErrorContains(t, err, "access denied")
}
