package httpapi

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/feed_layer/pkg/logger"
)

func TestServer_Lifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := NewServer("127.0.0.1:0", handler, logger.New("test", logger.Options{Output: io.Discard}))
	require.Equal(t, "http-server", srv.Name())

	require.NoError(t, srv.Start(context.Background()))
	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	_, err = http.Get("http://" + srv.Addr() + "/")
	assert.Error(t, err)
}
