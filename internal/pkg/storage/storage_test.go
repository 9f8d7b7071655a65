package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageLifecycle(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/files/")
	require.NoError(t, err)

	key := "exports/p1/deck.json"
	require.NoError(t, st.Put(ctx, key, strings.NewReader(`{"slides":[]}`), -1, "application/json"))

	ok, err := st.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := st.Get(ctx, key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, `{"slides":[]}`, string(body))
	assert.Equal(t, "http://localhost:8080/files/exports/p1/deck.json", st.URL(key))

	require.NoError(t, st.Delete(ctx, key))
	require.NoError(t, st.Delete(ctx, key))

	_, err = st.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	err = st.Put(context.Background(), "../escape.txt", strings.NewReader("x"), 1, "text/plain")
	assert.Error(t, err)
}

func TestIsNotFoundRecognisesAPIErrors(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: timeout")))
}

func TestS3URL(t *testing.T) {
	s := &S3Storage{bucket: "b", endpoint: "http://minio:9000"}
	assert.Equal(t, "http://minio:9000/b/k.png", s.URL("k.png"))

	s.publicURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/k.png", s.URL("k.png"))

	assert.Equal(t, "https://b.s3.amazonaws.com/k.png", (&S3Storage{bucket: "b"}).URL("k.png"))
}
