package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
)

func TestHTTP_Save(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.EscapedPath(), r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"_id":"k 1","title":"x","_kmd":{"lmt":"2024-01-01T00:00:00.000Z"}}`)
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL+"/", "kid_app", WithHeader("Authorization", "Kinvey token"))
	require.NoError(t, err)

	echo, err := h.Save(context.Background(), "books", doc.Document{"_id": "k 1", "title": "x"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/appdata/kid_app/books/k%201", gotPath)
	assert.Equal(t, "Kinvey token", gotAuth)
	assert.JSONEq(t, `{"_id":"k 1","title":"x"}`, gotBody)

	lmt, ok := echo.LastModified()
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", lmt)
}

func TestHTTP_SaveEmptyBodyEchoesInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, "app")
	require.NoError(t, err)

	in := doc.Document{"_id": "k1"}
	echo, err := h.Save(context.Background(), "books", in)
	require.NoError(t, err)
	assert.Equal(t, in, echo)
}

func TestHTTP_Delete(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotQuery = r.Method, r.URL.Path, r.URL.Query().Get("query")
		io.WriteString(w, `{"count":2}`)
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, "app")
	require.NoError(t, err)

	require.NoError(t, h.Delete(context.Background(), "books", query.In(doc.FieldID, []string{"a", "b"})))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/appdata/app/books/", gotPath)
	assert.Equal(t, `{"_id":{"$in":["a","b"]}}`, gotQuery)
}

func TestHTTP_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"InsufficientCredentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, "app")
	require.NoError(t, err)

	_, err = h.Save(context.Background(), "books", doc.Document{"_id": "k1"})
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "InsufficientCredentials")

	err = h.Delete(context.Background(), "books", query.In(doc.FieldID, []string{"a"}))
	assert.True(t, errors.As(err, &se))
}

func TestHTTP_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h, err := NewHTTP(srv.URL, "app", WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = h.Save(context.Background(), "books", doc.Document{"_id": "k1"})
	assert.Error(t, err)
}

func TestHTTP_SaveRequiresID(t *testing.T) {
	h, err := NewHTTP("https://example.invalid", "app")
	require.NoError(t, err)

	_, err = h.Save(context.Background(), "books", doc.Document{"title": "x"})
	assert.Error(t, err)
}

func TestNewHTTP_Validation(t *testing.T) {
	_, err := NewHTTP("ftp://example.com", "app")
	assert.Error(t, err)

	_, err = NewHTTP("https://example.com", "")
	assert.Error(t, err)
}
