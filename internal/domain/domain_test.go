package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"garbage", CategoryGarbage, true},
		{"  Potholes ", CategoryPotholes, true},
		{"DEFORESTATION", CategoryDeforestation, true},
		{"reject", CategoryReject, true},
		{"pothole", "", false},
		{"cat photo", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCategory(tt.in)
		require.Equal(t, tt.ok, ok, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestSeverityLevelRank(t *testing.T) {
	ordered := []SeverityLevel{LevelNone, LevelLow, LevelModerate, LevelModerateHigh, LevelHigh, LevelSevere}
	for i := 1; i < len(ordered); i++ {
		require.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
	}
	require.Equal(t, -1, SeverityLevel("extreme").Rank())
	require.False(t, SeverityLevel("").Valid())
}

func TestNewURLReference(t *testing.T) {
	ref, err := NewURLReference(" https://example.com/a.jpg ")
	require.NoError(t, err)
	require.Equal(t, ReferenceURL, ref.Kind())
	require.Equal(t, "https://example.com/a.jpg", ref.URL())

	for _, bad := range []string{"", "   ", "ftp://example.com/a.jpg", "https://", "not a url"} {
		_, err := NewURLReference(bad)
		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr, bad)
		require.Equal(t, "image_url", inputErr.Field)
	}
}

func TestNewUploadReferenceCopiesData(t *testing.T) {
	data := []byte("image-bytes")
	ref, err := NewUploadReference(data, " image/png ")
	require.NoError(t, err)
	data[0] = 'X'
	require.Equal(t, "image-bytes", string(ref.Data()))
	require.Equal(t, "image/png", ref.ContentType())
	require.Equal(t, "upload(11 bytes, image/png)", ref.String())

	_, err = NewUploadReference(nil, "image/png")
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
}

type temporaryErr struct{}

func (temporaryErr) Error() string   { return "temporary" }
func (temporaryErr) Temporary() bool { return true }

func TestModelErrorTemporary(t *testing.T) {
	require.True(t, (&ModelError{Reason: ModelErrorTimeout, Err: errors.New("slow")}).Temporary())
	require.True(t, (&ModelError{Reason: ModelErrorUpstream, Err: fmt.Errorf("wrap: %w", temporaryErr{})}).Temporary())
	require.False(t, (&ModelError{Reason: ModelErrorUpstream, Err: errors.New("bad request")}).Temporary())
	require.False(t, (&ModelError{Reason: ModelErrorMalformed, Err: temporaryErr{}}).Temporary())
	require.False(t, (&ModelError{Reason: ModelErrorCancelled, Err: context.Canceled}).Temporary())
}

func TestErrorsUnwrap(t *testing.T) {
	err := &ModelError{Reason: ModelErrorCancelled, Model: "gpt-4o", Err: context.DeadlineExceeded}
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "model gpt-4o call cancelled: context deadline exceeded", err.Error())

	fetchErr := &FetchError{Source: "https://example.com/x.png", Err: errors.New("status 404")}
	require.Equal(t, "fetch image https://example.com/x.png: status 404", fetchErr.Error())
	require.False(t, fetchErr.Temporary())
}
