package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	userID := uuid.MustParse("0192f1a4-7a5e-7c3e-9d2a-1b2c3d4e5f60")
	require.Equal(t,
		"pe-beginner/0192f1a4-7a5e-7c3e-9d2a-1b2c3d4e5f60/pe-beginner-abc123.pdf",
		ObjectKey("pe-beginner", userID, "pe-beginner-abc123"),
	)
}

func TestParseObjectKey(t *testing.T) {
	userID := uuid.MustParse("0192f1a4-7a5e-7c3e-9d2a-1b2c3d4e5f60")

	courseKey, owner, certID, err := ParseObjectKey(ObjectKey("rag-beginner", userID, "rag-beginner-abc"))
	require.NoError(t, err)
	require.Equal(t, "rag-beginner", courseKey)
	require.Equal(t, userID, owner)
	require.Equal(t, "rag-beginner-abc", certID)

	for _, key := range []string{
		"",
		"pe-beginner/" + userID.String(),
		"pe-beginner/not-a-uuid/c.pdf",
		"pe-beginner/" + userID.String() + "/c.png",
		"pe-beginner/" + userID.String() + "/.pdf",
		"/" + userID.String() + "/c.pdf",
		"a/b/" + userID.String() + "/c.pdf",
	} {
		t.Run(key, func(t *testing.T) {
			_, _, _, err := ParseObjectKey(key)
			require.Error(t, err)
		})
	}
}

func TestValidKey(t *testing.T) {
	require.NoError(t, validKey("pe-beginner/u/c.pdf"))
	require.Error(t, validKey(""))
	require.Error(t, validKey("/abs.pdf"))
	require.Error(t, validKey("a/../b.pdf"))
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "typed not found", err: &types.NotFound{}, expected: true},
		{name: "typed no such key", err: fmt.Errorf("head: %w", &types.NoSuchKey{}), expected: true},
		{name: "generic api code", err: &smithy.GenericAPIError{Code: "NotFound"}, expected: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, expected: false},
		{name: "plain error", err: errors.New("dial tcp: refused"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, isNotFound(tt.err))
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore("http://localhost:8080/blob/")
	key := "pe-beginner/u/pe-beginner-abc.pdf"

	require.NoError(t, st.EnsureBucket(ctx))
	require.NoError(t, st.EnsureBucket(ctx))

	exists, err := st.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, st.Put(ctx, key, []byte("%PDF-1.3"), ContentTypePDF))

	exists, err = st.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	signed, err := st.PresignGet(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "http://localhost:8080/blob/"+key+"?"))

	require.Error(t, st.Put(ctx, "../escape.pdf", nil, ContentTypePDF))
}

func TestMemoryStore_Handler(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore("http://example.test/blob")
	key := "pe-beginner/u/pe-beginner-abc.pdf"
	require.NoError(t, st.Put(ctx, key, []byte("%PDF-1.3 body"), ContentTypePDF))

	handler := http.StripPrefix("/blob", st.Handler())

	get := func(t *testing.T, rawURL string) *http.Response {
		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
		return rec.Result()
	}

	t.Run("valid link", func(t *testing.T) {
		signed, err := st.PresignGet(ctx, key, time.Minute)
		require.NoError(t, err)

		resp := get(t, signed)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, ContentTypePDF, resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "%PDF-1.3 body", string(body))
	})

	t.Run("tampered key", func(t *testing.T) {
		signed, err := st.PresignGet(ctx, key, time.Minute)
		require.NoError(t, err)

		resp := get(t, strings.Replace(signed, "pe-beginner-abc", "pe-beginner-xyz", 1))
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("expired link", func(t *testing.T) {
		signed, err := st.PresignGet(ctx, key, -time.Minute)
		require.NoError(t, err)

		resp := get(t, signed)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("signed but missing object", func(t *testing.T) {
		signed, err := st.PresignGet(ctx, "pe-beginner/u/missing.pdf", time.Minute)
		require.NoError(t, err)

		resp := get(t, signed)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
