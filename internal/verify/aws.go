// Package verify checks freshly rotated credentials against their issuer
// before anyone depends on them. Verification is advisory: a rotation
// that wrote successfully is still a rotation even when the check fails.
package verify

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/logging"
)

// CallerIdentityAPI is the slice of the STS client the verifier uses.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AWSVerifier validates access key pairs with sts:GetCallerIdentity.
type AWSVerifier struct {
	logger    *logging.Logger
	region    string
	newClient func(ctx context.Context, accessKey, secretKey string) (CallerIdentityAPI, error)
}

// NewAWSVerifier creates a verifier for the given region. An empty region
// falls back to the SDK's usual resolution chain.
func NewAWSVerifier(region string, logger *logging.Logger) *AWSVerifier {
	v := &AWSVerifier{logger: logger, region: region}
	v.newClient = v.stsClient
	return v
}

// CheckKeyPair confirms the pair is accepted by AWS and returns the
// caller ARN it authenticates as. New keys can take a few seconds to
// propagate, so callers should treat a failure as a warning, not proof
// the rotation went wrong.
func (v *AWSVerifier) CheckKeyPair(ctx context.Context, accessKey, secretKey string) (string, error) {
	client, err := v.newClient(ctx, accessKey, secretKey)
	if err != nil {
		return "", roterrors.UserError{
			Message:    "Failed to configure AWS credential check",
			Details:    err.Error(),
			Suggestion: "Check the region setting and network connectivity to AWS",
		}
	}

	v.logger.Debug("Verifying access key %s", logging.Secret(accessKey))

	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", roterrors.UserError{
			Message:    "AWS rejected the rotated key pair",
			Details:    err.Error(),
			Suggestion: "New keys can take a few seconds to propagate; retry before revoking the old pair",
		}
	}

	arn := ""
	if out.Arn != nil {
		arn = *out.Arn
	}
	return arn, nil
}

func (v *AWSVerifier) stsClient(ctx context.Context, accessKey, secretKey string) (CallerIdentityAPI, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	}
	if v.region != "" {
		opts = append(opts, awsconfig.WithRegion(v.region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sts.NewFromConfig(cfg), nil
}
