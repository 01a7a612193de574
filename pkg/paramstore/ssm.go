package paramstore

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI is the subset of the Systems Manager client the store uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSM stores parameters as String parameters in AWS Systems Manager
// Parameter Store.
type SSM struct {
	client SSMAPI
}

var _ Store = (*SSM)(nil)

// NewSSM creates a store backed by a real SSM client.
func NewSSM(cfg awssdk.Config) *SSM {
	return NewSSMWithClient(ssm.NewFromConfig(cfg))
}

// NewSSMWithClient creates a store with an injected client.
func NewSSMWithClient(client SSMAPI) *SSM {
	return &SSM{client: client}
}

func (s *SSM) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           awssdk.String(key),
		WithDecryption: awssdk.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("get parameter %s: %w", key, err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return awssdk.ToString(out.Parameter.Value), nil
}

func (s *SSM) Put(ctx context.Context, key, value string, overwrite bool) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      awssdk.String(key),
		Value:     awssdk.String(value),
		Type:      types.ParameterTypeString,
		Overwrite: awssdk.Bool(overwrite),
	})
	if err != nil {
		var exists *types.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("%s: %w", key, ErrAlreadyExists)
		}
		return fmt.Errorf("put parameter %s: %w", key, err)
	}
	return nil
}
