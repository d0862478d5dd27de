package publish

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
)

type S3 struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

func NewS3(sess *session.Session, bucket, prefix string) *S3 {
	return &S3{uploader: s3manager.NewUploader(sess), bucket: bucket, prefix: prefix}
}

func (s *S3) Name() string {
	return "s3://" + path.Join(s.bucket, s.prefix)
}

func (s *S3) Put(ctx context.Context, name, contentType string, data []byte) error {
	key := path.Join(s.prefix, name)
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return errors.Wrapf(err, "could not upload %v", key)
}
