package cloud

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options returns the client options for cfg. Custom endpoints (LocalStack) need path-style addressing.
func S3Options(cfg aws.Config) []func(*s3.Options) {
	if cfg.BaseEndpoint == nil {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) { o.UsePathStyle = true }}
}

// S3 returns an S3 client for the session.
func (c *Client) S3() *s3.Client {
	return s3.NewFromConfig(c.Config, S3Options(c.Config)...)
}
