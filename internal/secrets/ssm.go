// Package secrets reads and writes credentials kept in AWS SSM Parameter
// Store.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/dmitrijs2005/esimrouter/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newSSMClientFromConfig = func(cfg aws.Config, optFns ...func(*ssm.Options)) parameterAPI {
		return ssm.NewFromConfig(cfg, optFns...)
	}
)

type parameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type Store struct {
	api parameterAPI
}

func New(ctx context.Context, region string) (*Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Store{api: newSSMClientFromConfig(cfg)}, nil
}

// Get returns the decrypted value of name. A missing parameter yields
// common.ErrorNotFound.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: parameter %s", common.ErrorNotFound, name)
		}
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("%w: parameter %s", common.ErrorNotFound, name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// Put stores value under name as a SecureString, replacing any previous value.
func (s *Store) Put(ctx context.Context, name, value string) error {
	_, err := s.api.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("put parameter %s: %w", name, err)
	}
	return nil
}
