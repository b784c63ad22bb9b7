package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/kursadbilgin/outreach-engine/internal/render"
)

// SESAPI is the subset of the SES v2 client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var transientSESCodes = map[string]struct{}{
	"TooManyRequestsException": {},
	"LimitExceededException":   {},
	"ThrottlingException":      {},
	"InternalFailure":          {},
	"ServiceUnavailable":       {},
}

var _ Sender = (*SESSender)(nil)

// SESSender submits the raw MIME message through Amazon SES.
type SESSender struct {
	client           SESAPI
	configurationSet string
}

func NewSESSender(awsCfg aws.Config, configurationSet string) *SESSender {
	return NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), configurationSet)
}

func NewSESSenderWithClient(client SESAPI, configurationSet string) *SESSender {
	return &SESSender{client: client, configurationSet: configurationSet}
}

func (s *SESSender) Name() string {
	return "ses"
}

func (s *SESSender) Send(ctx context.Context, msg *render.Message) error {
	if msg == nil {
		return &ProviderError{Message: "message is required"}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg.Raw},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return classifySES(err)
	}
	return nil
}

func classifySES(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, transient := transientSESCodes[apiErr.ErrorCode()]
		return &ProviderError{
			Message:   fmt.Sprintf("ses rejected message: %s", apiErr.ErrorCode()),
			Transient: transient || apiErr.ErrorFault() == smithy.FaultServer,
			Cause:     err,
		}
	}

	return &ProviderError{
		Message:   "ses request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}
