package secret

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSMClient struct {
	params map[string]string
}

func (f *fakeSSMClient) GetParameter(_ context.Context, input *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	val, ok := f.params[*input.Name]
	if !ok {
		return nil, fmt.Errorf("parameter not found: %s", *input.Name)
	}
	if !aws.ToBool(input.WithDecryption) {
		return nil, fmt.Errorf("expected decryption to be requested")
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: input.Name, Value: aws.String(val)},
	}, nil
}

func TestSSMResolver(t *testing.T) {
	r := NewSSMResolver(&fakeSSMClient{params: map[string]string{
		"/field-survey/jwt-secret": "super-secret-value",
	}})

	val, err := r.GetSecret(context.Background(), "/field-survey/jwt-secret")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", val)

	_, err = r.GetSecret(context.Background(), "/field-survey/missing")
	assert.Error(t, err)
}

func TestEnvResolver(t *testing.T) {
	env := map[string]string{"JWT_SECRET": "from-env", "BLANK": "  "}
	r := &EnvResolver{lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	val, err := r.GetSecret(context.Background(), "/field-survey/jwt-secret")
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)

	_, err = r.GetSecret(context.Background(), "/field-survey/blank")
	assert.Error(t, err)
	_, err = r.GetSecret(context.Background(), "/field-survey/unset")
	assert.Error(t, err)
}

func TestParamNameToEnvVar(t *testing.T) {
	tests := map[string]string{
		"/field-survey/jwt-secret":     "JWT_SECRET",
		"/x/y/google-client-secret":    "GOOGLE_CLIENT_SECRET",
		"plain":                        "PLAIN",
		"/field-survey/s3-bucket-name": "S3_BUCKET_NAME",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParamNameToEnvVar(in), in)
	}
}

func TestNew_DefaultsToEnv(t *testing.T) {
	r, err := New(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &EnvResolver{}, r)
}
