package paramstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	mu     sync.Mutex
	params map[string]string
	kinds  map[string]types.ParameterType
	err    error
}

func newFakeSSM() *fakeSSM {
	return &fakeSSM{params: map[string]string{}, kinds: map[string]types.ParameterType{}}
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	name := awssdk.ToString(params.Name)
	v, ok := f.params[name]
	if !ok {
		return nil, &types.ParameterNotFound{Message: awssdk.String("not found")}
	}
	if f.kinds[name] == types.ParameterTypeSecureString && !awssdk.ToBool(params.WithDecryption) {
		v = "AQICAHh" + v // KMS ciphertext stand-in
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: params.Name, Value: awssdk.String(v)}}, nil
}

func (f *fakeSSM) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	name := awssdk.ToString(params.Name)
	if _, ok := f.params[name]; ok && !awssdk.ToBool(params.Overwrite) {
		return nil, &types.ParameterAlreadyExists{Message: awssdk.String("exists")}
	}
	f.params[name] = awssdk.ToString(params.Value)
	f.kinds[name] = params.Type
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "/spotorch/provisioning-enabled")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "/spotorch/provisioning-enabled", "true", false))
	v, err := store.Get(ctx, "/spotorch/provisioning-enabled")
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	err = store.Put(ctx, "/spotorch/provisioning-enabled", "false", false)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, store.Put(ctx, "/spotorch/provisioning-enabled", "false", true))
	v, err = store.Get(ctx, "/spotorch/provisioning-enabled")
	require.NoError(t, err)
	assert.Equal(t, "false", v)

	// Overwriting with the same value is idempotent.
	require.NoError(t, store.Put(ctx, "/spotorch/provisioning-enabled", "false", true))
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestSSM(t *testing.T) {
	fake := newFakeSSM()
	testStore(t, NewSSMWithClient(fake))
	assert.Equal(t, types.ParameterTypeString, fake.kinds["/spotorch/provisioning-enabled"])
}

func TestSSM_GetDecryptsSecureString(t *testing.T) {
	fake := newFakeSSM()
	info := `{"instance_id":"i-0abc","region":"us-west-2"}`
	fake.params["/spotorch/instances-info"] = info
	fake.kinds["/spotorch/instances-info"] = types.ParameterTypeSecureString

	v, err := NewSSMWithClient(fake).Get(context.Background(), "/spotorch/instances-info")
	require.NoError(t, err)
	assert.Equal(t, info, v)
}

func TestSSM_DownstreamError(t *testing.T) {
	fake := newFakeSSM()
	boom := errors.New("ThrottlingException")
	fake.err = boom
	store := NewSSMWithClient(fake)

	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = store.Put(context.Background(), "k", "v", true)
	assert.ErrorIs(t, err, boom)
}
