package netx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutBinary(t *testing.T) {
	file := []byte("\x89PNG fake image")

	t.Run("success 201 Created", func(t *testing.T) {
		var gotBody []byte
		var gotCT, gotAuth, gotMethod string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotAuth = r.Header.Get("Authorization")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		}))
		defer ts.Close()

		h := http.Header{}
		h.Set("Authorization", "Bearer tok")
		err := PutBinary(context.Background(), ts.Client(), ts.URL+"/upload?sig=abc", file, "image/png", h)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPut, gotMethod)
		assert.Equal(t, "image/png", gotCT)
		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, file, gotBody)
	})

	t.Run("default content type", func(t *testing.T) {
		var gotCT string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCT = r.Header.Get("Content-Type")
		}))
		defer ts.Close()

		require.NoError(t, PutBinary(context.Background(), nil, ts.URL, file, "", nil))
		assert.Equal(t, "application/octet-stream", gotCT)
	})

	t.Run("non-2xx -> UploadError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("denied"))
		}))
		defer ts.Close()

		err := PutBinary(context.Background(), ts.Client(), ts.URL, file, "", nil)
		var ue *UploadError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, http.StatusForbidden, ue.Status)
		assert.Equal(t, "denied", ue.Body)
		assert.Contains(t, err.Error(), "upload failed: 403")
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		err := PutBinary(context.Background(), nil, ts.URL, file, "", nil)
		require.Error(t, err)
		var ue *UploadError
		assert.False(t, errors.As(err, &ue))
	})
}
