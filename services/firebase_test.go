package services

import (
	"context"
	"testing"
	"time"

	"ruuvigate/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type countingIssuer struct {
	invalidated int
}

func (i *countingIssuer) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "token", TokenType: "Bearer"}, nil
}

func (i *countingIssuer) Invalidate() { i.invalidated++ }

// newScriptedSink returns a sink whose writes answer with errs in order, then succeed
func newScriptedSink(errs ...error) (*FirestoreSink, *countingIssuer, *[]string) {
	issuer := &countingIssuer{}
	var keys []string
	fs := &FirestoreSink{collection: "sensors", issuer: issuer, logger: zap.NewNop()}
	fs.write = func(_ context.Context, key string, _ *models.DeviceDocument) error {
		keys = append(keys, key)
		if len(errs) == 0 {
			return nil
		}
		err := errs[0]
		errs = errs[1:]
		return err
	}
	return fs, issuer, &keys
}

func TestFirestoreSink_ReissuesCredentialOnce(t *testing.T) {
	fs, issuer, keys := newScriptedSink(status.Error(codes.Unauthenticated, "token expired"))

	err := fs.Upload(context.Background(), "2024-03-09_AA_AA_AA_AA_AA_01", &models.DeviceDocument{})
	require.NoError(t, err)
	assert.Equal(t, 1, issuer.invalidated)
	assert.Equal(t, []string{"2024-03-09_AA_AA_AA_AA_AA_01", "2024-03-09_AA_AA_AA_AA_AA_01"}, *keys)
}

func TestFirestoreSink_SecondRejectionIsReturned(t *testing.T) {
	fs, issuer, keys := newScriptedSink(
		status.Error(codes.Unauthenticated, "token expired"),
		status.Error(codes.Unauthenticated, "still expired"),
	)

	err := fs.Upload(context.Background(), "k", &models.DeviceDocument{})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, 1, issuer.invalidated)
	assert.Len(t, *keys, 2)
}

func TestFirestoreSink_PermissionDeniedIsPermanent(t *testing.T) {
	fs, issuer, keys := newScriptedSink(status.Error(codes.PermissionDenied, "rules"))

	err := Retry(context.Background(), zap.NewNop(), "upload", 3, time.Millisecond, func(ctx context.Context) error {
		return fs.Upload(ctx, "k", &models.DeviceDocument{})
	})
	require.Error(t, err)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Zero(t, issuer.invalidated)
	assert.Len(t, *keys, 1, "permanent rejection is not retried")

	_, err = newScriptedSinkUpload(status.Error(codes.PermissionDenied, "rules"))
	var permanent *backoff.PermanentError
	assert.ErrorAs(t, err, &permanent)
}

func TestFirestoreSink_TransientErrorIsRetryable(t *testing.T) {
	_, err := newScriptedSinkUpload(status.Error(codes.Unavailable, "connection reset"))
	require.Error(t, err)
	var permanent *backoff.PermanentError
	assert.NotErrorAs(t, err, &permanent)
}

func newScriptedSinkUpload(errs ...error) (*countingIssuer, error) {
	fs, issuer, _ := newScriptedSink(errs...)
	return issuer, fs.Upload(context.Background(), "k", &models.DeviceDocument{})
}

func TestStatusPath(t *testing.T) {
	assert.Equal(t, "gateways/gw-01/status", StatusPath("gw-01"))
}
