//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Store_Integration(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)

	store, err := NewS3Store(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredential,
		SecretAccessKey: testutil.RustFSCredential,
		Bucket:          "docqa-test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))

	require.NoError(t, store.Put(ctx, "indices/doc.index", []byte("blob")))
	data, err := store.Get(ctx, "indices/doc.index")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)

	keys, err := store.List(ctx, "indices/")
	require.NoError(t, err)
	assert.Equal(t, []string{"indices/doc.index"}, keys)

	require.NoError(t, store.Delete(ctx, "indices/doc.index"))
	_, err = store.Get(ctx, "indices/doc.index")
	assert.True(t, errors.Is(err, domain.ErrArtifactNotFound))
}
