package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ErrNotFound is returned by Lookup when the parameter does not exist.
var ErrNotFound = errors.New("paramstore: parameter not found")

// Client reads deployment settings (such as the AI service base URL) from
// AWS Systems Manager Parameter Store.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client. Names passed to Lookup are joined onto prefix.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix}, nil
}

// Name returns the fully qualified parameter name for key.
func (c *Client) Name(key string) string {
	return c.prefix + "/" + strings.TrimLeft(strings.TrimSpace(key), "/")
}

// Lookup returns the decrypted value stored under prefix/key.
func (c *Client) Lookup(ctx context.Context, key string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("paramstore: key is required")
	}
	name := c.Name(key)

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return strings.TrimSpace(*out.Parameter.Value), nil
}
