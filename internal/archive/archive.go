// Package archive copies raw gateway callbacks to S3, one JSON object per
// delivery.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/natureofthedivine/storefront/internal/domain"
)

// PutObjectAPI is the subset of *s3.Client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client PutObjectAPI
	bucket string
}

func NewS3Archiver(client PutObjectAPI, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Key returns the object key for l: callbacks/{kind}/{yyyy-mm-dd}/{id}.json.
func Key(l *domain.CallbackLog) string {
	return fmt.Sprintf("callbacks/%s/%s/%s.json", l.Kind, l.ReceivedAt.UTC().Format("2006-01-02"), l.ID)
}

func (a *S3Archiver) Archive(ctx context.Context, l *domain.CallbackLog) error {
	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(l)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
