package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ghusers/internal/errors"
	"ghusers/internal/vcs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL: srv.URL,
		Owner:   "acme",
		Repo:    "data",
		Token:   "secret",
	})
	require.NoError(t, err)
	return c
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func TestNew(t *testing.T) {
	_, err := New(Options{Owner: "acme"})
	assert.Error(t, err)

	c, err := New(Options{Owner: "acme", Repo: "data"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestGetRef(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/repos/acme/data/commits/main", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
			reply(w, http.StatusOK, map[string]string{"sha": "abc123"})
		})

		sha, err := c.GetRef(context.Background(), "main")
		require.NoError(t, err)
		assert.Equal(t, "abc123", sha)
	})

	t.Run("StatusMapping", func(t *testing.T) {
		tests := []struct {
			name     string
			status   int
			header   map[string]string
			wantType errors.ErrorType
		}{
			{"missing", http.StatusNotFound, nil, errors.ErrorTypeRefNotFound},
			{"unauthorized", http.StatusUnauthorized, nil, errors.ErrorTypeUnauthorized},
			{"forbidden", http.StatusForbidden, nil, errors.ErrorTypeUnauthorized},
			{"rate limited", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, errors.ErrorTypeTransient},
			{"too many requests", http.StatusTooManyRequests, nil, errors.ErrorTypeTransient},
			{"server error", http.StatusBadGateway, nil, errors.ErrorTypeTransient},
			{"teapot", http.StatusTeapot, nil, errors.ErrorTypeInternal},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					for k, v := range tt.header {
						w.Header().Set(k, v)
					}
					reply(w, tt.status, map[string]string{"message": "nope"})
				})

				_, err := c.GetRef(context.Background(), "main")
				require.Error(t, err)
				assert.Equal(t, tt.wantType, errors.TypeOf(err))
			})
		}
	})

	t.Run("TransportFailure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		c, err := New(Options{BaseURL: srv.URL, Owner: "acme", Repo: "data"})
		require.NoError(t, err)

		_, err = c.GetRef(context.Background(), "main")
		assert.True(t, errors.Is(err, errors.ErrorTypeTransient))
	})
}

func TestCreateRef(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/repos/acme/data/git/refs", r.URL.Path)

			var body createRefRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refs/heads/txn-1", body.Ref)
			assert.Equal(t, "abc", body.SHA)
			reply(w, http.StatusCreated, map[string]string{"ref": body.Ref})
		})

		require.NoError(t, c.CreateRef(context.Background(), "txn-1", "abc"))
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
		})

		err := c.CreateRef(context.Background(), "txn-1", "abc")
		assert.True(t, errors.Is(err, errors.ErrorTypeRefConflict))
	})
}

func TestReadFile(t *testing.T) {
	t.Run("Inline", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/acme/data/contents/dir/data.json", r.URL.Path)
			assert.Equal(t, "txn-1", r.URL.Query().Get("ref"))
			reply(w, http.StatusOK, contentResponse{Type: "file", Encoding: "base64", Content: "eyJ1c2Vy\ncyI6W119\n", SHA: "f1"})
		})

		f, err := c.ReadFile(context.Background(), "dir/data.json", "txn-1")
		require.NoError(t, err)
		assert.Equal(t, "eyJ1c2Vy\ncyI6W119\n", string(f.Content))
		assert.Equal(t, "f1", f.Token)
	})

	t.Run("LargeFileViaBlob", func(t *testing.T) {
		var srvURL string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/repos/acme/data/contents/data.json":
				reply(w, http.StatusOK, contentResponse{Type: "file", Encoding: "none", SHA: "f2", GitURL: srvURL + "/repos/acme/data/git/blobs/f2"})
			case "/repos/acme/data/git/blobs/f2":
				reply(w, http.StatusOK, blobResponse{Content: "eyJ1c2VycyI6W119", Encoding: "base64"})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		srvURL = srv.URL

		c, err := New(Options{BaseURL: srv.URL, Owner: "acme", Repo: "data"})
		require.NoError(t, err)

		f, err := c.ReadFile(context.Background(), "data.json", "main")
		require.NoError(t, err)
		assert.Equal(t, "eyJ1c2VycyI6W119", string(f.Content))
		assert.Equal(t, "f2", f.Token)
	})

	t.Run("Missing", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		})

		_, err := c.ReadFile(context.Background(), "data.json", "main")
		assert.True(t, errors.Is(err, errors.ErrorTypeFileNotFound))
	})
}

func TestWriteFile(t *testing.T) {
	req := vcs.WriteRequest{
		Path:          "data.json",
		Content:       []byte("eyJ1c2VycyI6W119"),
		ExpectedToken: "f1",
		Ref:           "txn-1",
		Message:       "add user a",
	}

	t.Run("Written", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			var body putContentRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, putContentRequest{
				Message: "add user a",
				Content: "eyJ1c2VycyI6W119",
				SHA:     "f1",
				Branch:  "txn-1",
			}, body)
			reply(w, http.StatusOK, map[string]any{})
		})

		require.NoError(t, c.WriteFile(context.Background(), req))
	})

	t.Run("StaleToken", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusConflict, map[string]string{"message": "does not match"})
		})

		err := c.WriteFile(context.Background(), req)
		assert.True(t, errors.Is(err, errors.ErrorTypeWriteConflict))
	})

	t.Run("CreateRace", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusUnprocessableEntity, map[string]string{"message": "sha wasn't supplied"})
		})

		create := req
		create.ExpectedToken = ""
		err := c.WriteFile(context.Background(), create)
		assert.True(t, errors.Is(err, errors.ErrorTypeWriteConflict))
	})
}

func TestMergeRef(t *testing.T) {
	t.Run("FastForward", func(t *testing.T) {
		var calls []string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method+" "+r.URL.Path)
			switch r.Method + " " + r.URL.Path {
			case "GET /repos/acme/data/git/ref/heads/txn-1":
				reply(w, http.StatusOK, map[string]any{"ref": "refs/heads/txn-1", "object": map[string]string{"sha": "h1"}})
			case "GET /repos/acme/data/git/commits/h1":
				reply(w, http.StatusOK, map[string]any{"sha": "h1", "tree": map[string]string{"sha": "t1"}})
			case "POST /repos/acme/data/git/commits":
				var body createCommitRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, createCommitRequest{Message: "merge txn-1", Tree: "t1", Parents: []string{"h1"}}, body)
				reply(w, http.StatusCreated, map[string]any{"sha": "m1", "tree": map[string]string{"sha": "t1"}})
			case "PATCH /repos/acme/data/git/refs/heads/main":
				var body updateRefRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, updateRefRequest{SHA: "m1", Force: false}, body)
				reply(w, http.StatusOK, map[string]any{"ref": "refs/heads/main"})
			default:
				http.NotFound(w, r)
			}
		})

		require.NoError(t, c.MergeRef(context.Background(), "main", "txn-1", "merge txn-1"))
		assert.Len(t, calls, 4)
	})

	t.Run("UpdateStatusMapping", func(t *testing.T) {
		tests := []struct {
			name     string
			status   int
			message  string
			wantType errors.ErrorType
		}{
			{"not a fast forward", http.StatusUnprocessableEntity, "Update is not a fast forward", errors.ErrorTypeMergeConflict},
			{"base missing", http.StatusUnprocessableEntity, "Reference does not exist", errors.ErrorTypeRefNotFound},
			{"repo missing", http.StatusNotFound, "Not Found", errors.ErrorTypeRefNotFound},
			{"server error", http.StatusBadGateway, "bad gateway", errors.ErrorTypeTransient},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					switch r.Method {
					case http.MethodGet:
						reply(w, http.StatusOK, map[string]any{"object": map[string]string{"sha": "h1"}, "tree": map[string]string{"sha": "t1"}})
					case http.MethodPost:
						reply(w, http.StatusCreated, map[string]any{"sha": "m1"})
					default:
						reply(w, tt.status, map[string]string{"message": tt.message})
					}
				})

				err := c.MergeRef(context.Background(), "main", "txn-1", "merge txn-1")
				assert.Equal(t, tt.wantType, errors.TypeOf(err))
			})
		}
	})

	t.Run("HeadMissing", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		})

		err := c.MergeRef(context.Background(), "main", "txn-1", "merge txn-1")
		assert.True(t, errors.Is(err, errors.ErrorTypeRefNotFound))
	})
}

func TestDeleteRef(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound, http.StatusUnprocessableEntity} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/repos/acme/data/git/refs/heads/txn-1", r.URL.Path)
			w.WriteHeader(status)
		})
		assert.NoError(t, c.DeleteRef(context.Background(), "txn-1"), "status %d", status)
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := c.DeleteRef(context.Background(), "txn-1")
	assert.True(t, errors.Is(err, errors.ErrorTypeTransient))
}
