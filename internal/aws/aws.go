// Package aws wraps the AWS services the page may use: SSM for secrets and
// SQS as a queue for wallet verified events.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Clients struct {
	region    string
	ssmClient ssmAPI
	sqsClient sqsAPI
}

func Init(ctx context.Context, region string) (*Clients, error) {
	if region == "" {
		return nil, errors.New("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.WrapAndReport(err, "load aws sdk config")
	}
	log.Infof("AWS clients initialized in %v", region)
	return &Clients{
		region:    region,
		ssmClient: ssm.NewFromConfig(cfg),
		sqsClient: sqs.NewFromConfig(cfg),
	}, nil
}

// GetParameterFromSSM returns the decrypted value of paramName.
func (s *Clients) GetParameterFromSSM(ctx context.Context, paramName string) (string, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	}
	out, err := s.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return "", errors.WrapfAndReport(err, "query parameter %s from ssm", paramName)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.Errorf("ssm parameter %s has no value", paramName)
	}
	return *out.Parameter.Value, nil
}
