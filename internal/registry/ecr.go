// ABOUTME: AWS ECR authorization-token provider for the auth broker.
// ABOUTME: Handles AWS config loading and cross-account role assumption.

package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sirupsen/logrus"
)

// ECRAuthProvider implements ECRTokenProvider against the AWS API.
type ECRAuthProvider struct {
	client *ecr.Client
	logger *logrus.Logger
}

// NewECRAuthProvider creates an ECR token provider for the given region.
// When AWS_IAM_ASSUME_ROLE_ARN is set the named role is assumed for
// cross-account registry access.
func NewECRAuthProvider(ctx context.Context, region string, logger *logrus.Logger) (*ECRAuthProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if assumeRoleARN := os.Getenv("AWS_IAM_ASSUME_ROLE_ARN"); assumeRoleARN != "" {
		logger.WithField("role_arn", assumeRoleARN).Info("Assuming role from AWS_IAM_ASSUME_ROLE_ARN environment variable")

		stsClient := sts.NewFromConfig(cfg.Copy())
		cfg.Credentials = stscreds.NewAssumeRoleProvider(stsClient, assumeRoleARN)
	}

	return &ECRAuthProvider{
		client: ecr.NewFromConfig(cfg),
		logger: logger,
	}, nil
}

// AuthorizationToken requests an ECR authorization token. The returned value
// is a base64 user:password pair valid until the reported expiry (12 hours).
func (p *ECRAuthProvider) AuthorizationToken(ctx context.Context) (string, time.Time, error) {
	output, err := p.client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get ECR authorization token: %w", err)
	}
	if len(output.AuthorizationData) == 0 || output.AuthorizationData[0].AuthorizationToken == nil {
		return "", time.Time{}, fmt.Errorf("ECR returned no authorization data")
	}

	data := output.AuthorizationData[0]
	expiresAt := aws.ToTime(data.ExpiresAt)

	p.logger.WithField("expires_at", expiresAt).Debug("Obtained ECR authorization token")

	return aws.ToString(data.AuthorizationToken), expiresAt, nil
}
