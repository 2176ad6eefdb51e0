package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/config"
)

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestVerifyIdentity(t *testing.T) {
	c := &Client{STS: fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/ci"),
		UserId:  aws.String("AIDA"),
	}}}
	id, err := c.VerifyIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CallerIdentity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/ci", UserID: "AIDA"}, id)

	boom := errors.New("expired token")
	_, err = (&Client{STS: fakeSTS{err: boom}}).VerifyIdentity(context.Background())
	assert.ErrorIs(t, err, boom)
}

const callerIdentityXML = `<GetCallerIdentityResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <GetCallerIdentityResult>
    <Arn>arn:aws:iam::000000000000:root</Arn>
    <UserId>000000000000</UserId>
    <Account>000000000000</Account>
  </GetCallerIdentityResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</GetCallerIdentityResponse>`

func TestNewClient_EndpointAndUserAgent(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none")
	t.Setenv("AWS_CONFIG_FILE", missing)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", missing)
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(callerIdentityXML))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), config.AWSConfig{Region: "eu-west-1", Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", c.Config.Region)
	assert.Equal(t, "us-west-2", c.ConfigForRegion("us-west-2").Region)
	assert.Equal(t, "eu-west-1", c.Config.Region)

	id, err := c.VerifyIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "000000000000", id.Account)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, agents)
	assert.Contains(t, agents[0], "faultline/")
}

func TestIsThrottle(t *testing.T) {
	assert.True(t, IsThrottle(fmt.Errorf("get state: %w", &smithy.GenericAPIError{Code: "SlowDown"})))
	assert.True(t, IsThrottle(&smithy.GenericAPIError{Code: "ThrottlingException"}))
	assert.False(t, IsThrottle(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, IsThrottle(errors.New("boom")))
	assert.False(t, IsThrottle(nil))
}
