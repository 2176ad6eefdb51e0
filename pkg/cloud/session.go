// Package cloud loads the AWS SDK configuration shared by the S3, DynamoDB and STS clients.
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/version"
)

// STSAPI is the part of STS used to check credentials.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Client encapsulates AWS SDK usage, handling authentication, region resolution, and middleware injection.
type Client struct {
	Config aws.Config
	STS    STSAPI
}

// CallerIdentity is the principal behind the loaded credentials.
type CallerIdentity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"user_id"`
}

// NewClient initializes a new AWS client. Credentials are resolved lazily by the SDK;
// call VerifyIdentity to check them.
func NewClient(ctx context.Context, cfg config.AWSConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	region := cfg.Region
	if region == "" {
		region = config.DefaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	// Local endpoint overrides (LocalStack).
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	awsCfg.APIOptions = append(awsCfg.APIOptions, userAgent(version.UserAgent()), operationLogger(logger))

	return &Client{
		Config: awsCfg,
		STS:    sts.NewFromConfig(awsCfg),
	}, nil
}

// userAgent appends the product token to every request.
func userAgent(token string) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Build.Add(middleware.BuildMiddlewareFunc("FaultlineUserAgent", func(ctx context.Context, input middleware.BuildInput, next middleware.BuildHandler) (
			middleware.BuildOutput, middleware.Metadata, error,
		) {
			if req, ok := input.Request.(*smithyhttp.Request); ok {
				current := req.Header.Get("User-Agent")
				if current == "" {
					req.Header.Set("User-Agent", token)
				} else {
					req.Header.Set("User-Agent", current+" "+token)
				}
			}
			return next.HandleBuild(ctx, input)
		}), middleware.After)
	}
}

// operationLogger logs every API call at debug level.
func operationLogger(logger *slog.Logger) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Initialize.Add(middleware.InitializeMiddlewareFunc("FaultlineOperationLogger", func(ctx context.Context, input middleware.InitializeInput, next middleware.InitializeHandler) (
			middleware.InitializeOutput, middleware.Metadata, error,
		) {
			logger.DebugContext(ctx, "aws api call",
				"service", middleware.GetServiceID(ctx),
				"operation", middleware.GetOperationName(ctx))
			return next.HandleInitialize(ctx, input)
		}), middleware.Before)
	}
}

// VerifyIdentity validates the session credentials and retrieves the caller identity.
func (c *Client) VerifyIdentity(ctx context.Context) (CallerIdentity, error) {
	result, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return CallerIdentity{}, fmt.Errorf("failed to get caller identity: %w", err)
	}
	return CallerIdentity{
		Account: aws.ToString(result.Account),
		ARN:     aws.ToString(result.Arn),
		UserID:  aws.ToString(result.UserId),
	}, nil
}

// ConfigForRegion returns a regional configuration copy.
func (c *Client) ConfigForRegion(region string) aws.Config {
	cfg := c.Config.Copy()
	cfg.Region = region
	return cfg
}
