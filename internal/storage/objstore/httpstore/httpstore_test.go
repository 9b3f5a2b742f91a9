package httpstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_Upload(t *testing.T) {
	var gotBody []byte
	var gotAuth, gotCT, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"url": "https://cdn.example%s"}`, r.URL.Path)
	}))
	defer srv.Close()

	s := New(srv.URL, "store-token")
	url, err := s.Upload(context.Background(), []byte("img-bytes"), "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn.example/v1/objects/"))
	require.Equal(t, "Bearer store-token", gotAuth)
	require.Equal(t, "image/png", gotCT)
	require.Equal(t, []byte("img-bytes"), gotBody)
	require.True(t, strings.HasPrefix(gotPath, "/v1/objects/"))
}

func TestStore_Upload_distinctKeys(t *testing.T) {
	paths := map[string]struct{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths[r.URL.Path] = struct{}{}
		fmt.Fprintf(w, `{"url": "https://cdn.example%s"}`, r.URL.Path)
	}))
	defer srv.Close()

	s := New(srv.URL, "")
	for i := 0; i < 3; i++ {
		_, err := s.Upload(context.Background(), []byte("same bytes"), "image/jpeg")
		require.NoError(t, err)
	}
	require.Len(t, paths, 3)
}

func TestStore_Upload_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, "")
	_, err := s.Upload(context.Background(), []byte("x"), "image/jpeg")
	require.Error(t, err)
	require.Contains(t, err.Error(), "http status 500")
}

func TestStore_Upload_emptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	s := New(srv.URL, "")
	_, err := s.Upload(context.Background(), []byte("x"), "image/jpeg")
	require.Error(t, err)
}
