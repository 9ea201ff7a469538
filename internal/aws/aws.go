package aws

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var (
	Client *Clients
)

func Init(bucketName, region string) {
	if region == "" {
		log.Fatalf("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	Client = &Clients{
		bucketName: bucketName,
		region:     region,
		s3Client:   s3.NewFromConfig(cfg),
		ssmClient:  ssm.NewFromConfig(cfg),
		sqsClient:  sqs.NewFromConfig(cfg),
	}
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Clients struct {
	bucketName string
	region     string
	s3Client   s3API
	ssmClient  ssmAPI
	sqsClient  sqsAPI
}

func (s *Clients) GetParameterFromSSM(ctx context.Context, paramName string) (*ssmtypes.Parameter, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	}
	parameter, err := s.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return nil, errors.WrapAndReport(err, "query parameter from ssm")
	}
	return parameter.Parameter, nil
}

// GetParameterValue returns the decrypted value of a SecureString parameter.
func (s *Clients) GetParameterValue(ctx context.Context, paramName string) (string, error) {
	parameter, err := s.GetParameterFromSSM(ctx, paramName)
	if err != nil {
		return "", err
	}
	if parameter == nil || parameter.Value == nil {
		return "", errors.Errorf("ssm parameter %s has no value", paramName)
	}
	return *parameter.Value, nil
}

func (s *Clients) PutFileToS3(ctx context.Context, key string, file io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   file,
	}
	_, err := s.s3Client.PutObject(ctx, input)
	return errors.WrapAndReport(err, "put object to s3")
}

// ArchiveSignedDoc stores a signed document in the audit bucket. Without a bucket it is a no-op.
func (s *Clients) ArchiveSignedDoc(ctx context.Context, key string, body []byte) error {
	if s.bucketName == "" {
		return nil
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String("signed/" + key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}
	_, err := s.s3Client.PutObject(ctx, input)
	return errors.WrapAndReport(err, "archive signed document")
}
