package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestGetParameter_RequestsDecryption(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/docqa/gemini-token"), Value: strPtr(`{"token":"abc"}`), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /docqa/gemini-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)
	require.Equal(t, "/docqa/gemini-token", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_Errors(t *testing.T) {
	cases := []struct {
		name    string
		client  *Client
		param   string
		wantErr string
	}{
		{
			name:    "missing value",
			client:  &Client{api: &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}}},
			param:   "p",
			wantErr: "missing value",
		},
		{
			name:    "nil output",
			client:  &Client{api: &fakeAPI{}},
			param:   "p",
			wantErr: "missing value",
		},
		{
			name:    "empty value",
			client:  &Client{api: &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr("")}}}},
			param:   "p",
			wantErr: "missing value",
		},
		{
			name:    "api error",
			client:  &Client{api: &fakeAPI{getErr: errors.New("boom")}},
			param:   "p",
			wantErr: "boom",
		},
		{
			name:    "empty name",
			client:  &Client{api: &fakeAPI{}},
			param:   "  ",
			wantErr: "required",
		},
		{
			name:    "not initialized",
			client:  &Client{},
			param:   "p",
			wantErr: "not initialized",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.client.GetParameter(context.Background(), tc.param)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestGetParameter_NotFound(t *testing.T) {
	api := &fakeAPI{getErr: &types.ParameterNotFound{Message: strPtr("no such parameter")}}
	client, err := New(api)
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "/docqa/openai-token")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "/docqa/openai-token")
}

func TestTokenParameterName(t *testing.T) {
	require.Equal(t, "/docqa/gemini-token", TokenParameterName("/docqa/", "Gemini"))
	require.Equal(t, "/docqa/openai-token", TokenParameterName(" /docqa", "openai"))
}
