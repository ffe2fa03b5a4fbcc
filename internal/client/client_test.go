package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/visit-counter/internal/apikey"
	"github.com/tckz/visit-counter/internal/counter"
	"github.com/tckz/visit-counter/internal/server"
	"golang.org/x/sync/errgroup"
)

const testKey = "client-test-key"

func startServer(t *testing.T, initial int64) *httptest.Server {
	t.Helper()
	auth, err := apikey.NewAuthorizer(testKey)
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(counter.NewLocalCounter(initial), auth).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHit_Sequential(t *testing.T) {
	ts := startServer(t, 99)
	cl, err := New(ts.URL+"/", testKey, ts.Client())
	require.NoError(t, err)

	ctx := context.Background()
	a, err := cl.Hit(ctx)
	require.NoError(t, err)
	b, err := cl.Hit(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(100), a)
	assert.Greater(t, b, a)
}

func TestHit_Statuses(t *testing.T) {
	ts := startServer(t, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "wrong key", key: "wrongapikey", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, err := New(ts.URL, tt.key, ts.Client())
			require.NoError(t, err)

			_, err = cl.Hit(ctx)
			var se *StatusError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.want, se.Code)
		})
	}
}

func TestHit_NotACount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":1}`))
	}))
	defer ts.Close()

	cl, err := New(ts.URL, testKey, ts.Client())
	require.NoError(t, err)
	_, err = cl.Hit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a decimal count")
}

func TestHit_ConcurrentDistinct(t *testing.T) {
	const n = 64
	ts := startServer(t, 0)
	cl, err := New(ts.URL, testKey, ts.Client())
	require.NoError(t, err)

	got := make([]int64, n)
	eg, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			v, err := cl.Hit(ctx)
			got[i] = v
			return err
		})
	}
	require.NoError(t, eg.Wait())

	seen := make(map[int64]bool, n)
	for _, v := range got {
		assert.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
		assert.True(t, v >= 1 && v <= n, "value %d out of range", v)
	}
}
