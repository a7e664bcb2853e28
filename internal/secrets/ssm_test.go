package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/common"
)

type fakeParams struct {
	values map[string]string
	kinds  map[string]types.ParameterType
	err    error
}

func (f *fakeParams) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (f *fakeParams) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.values[*in.Name] = *in.Value
	f.kinds[*in.Name] = in.Type
	return &ssm.PutParameterOutput{}, nil
}

func newFake() *fakeParams {
	return &fakeParams{values: map[string]string{}, kinds: map[string]types.ParameterType{}}
}

func TestGetPut_RoundTrip(t *testing.T) {
	f := newFake()
	s := &Store{api: f}

	require.NoError(t, s.Put(context.Background(), "/esim/layan/token", "jwt-1"))
	assert.Equal(t, types.ParameterTypeSecureString, f.kinds["/esim/layan/token"])

	v, err := s.Get(context.Background(), "/esim/layan/token")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", v)
}

func TestGet_NotFound(t *testing.T) {
	s := &Store{api: newFake()}
	_, err := s.Get(context.Background(), "/missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGet_APIError(t *testing.T) {
	f := newFake()
	f.err = errors.New("throttled")
	s := &Store{api: f}

	_, err := s.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorContains(t, s.Put(context.Background(), "/x", "v"), "throttled")
}

func TestNew_LoadConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}

	_, err := New(context.Background(), "us-east-1")
	assert.ErrorContains(t, err, "load aws config: no creds")
}

func TestNew_UsesClientSeam(t *testing.T) {
	origLoad, origClient := loadDefaultAWSConfig, newSSMClientFromConfig
	defer func() { loadDefaultAWSConfig, newSSMClientFromConfig = origLoad, origClient }()

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	f := newFake()
	newSSMClientFromConfig = func(aws.Config, ...func(*ssm.Options)) parameterAPI { return f }

	s, err := New(context.Background(), "us-east-1")
	require.NoError(t, err)
	assert.Same(t, f, s.api)
}
