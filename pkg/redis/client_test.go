package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClientFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, defaultTimeout, client.Options().ReadTimeout)
	require.NoError(t, client.Set(context.Background(), "k", "v", time.Minute).Err())
	got, _ := mr.Get("k")
	assert.Equal(t, "v", got)
}

func TestNewClientFromURLErrors(t *testing.T) {
	_, err := NewClientFromURL(context.Background(), "")
	assert.Error(t, err)

	_, err = NewClientFromURL(context.Background(), "mysql://nope")
	assert.ErrorContains(t, err, "parse redis url")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewClientFromURL(context.Background(), "redis://"+addr)
	assert.ErrorContains(t, err, "ping redis")
}
