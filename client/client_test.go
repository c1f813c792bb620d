package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"ghusers/internal/api"
	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/logging"
	"ghusers/internal/retry"
	"ghusers/internal/txn"
	"ghusers/internal/users"
	"ghusers/internal/vcs/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupServer(t *testing.T) *Client {
	db, err := local.OpenDB("", true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := local.New(db, local.Options{})
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background(), "main"))

	svc, err := users.NewService(store, txn.Options{
		BaseRef:     "main",
		Path:        "users.json",
		Bootstrap:   true,
		CallTimeout: time.Second,
		Policy:      retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(svc, &logging.Logger{Logger: zap.NewNop()}))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := setupServer(t)

	u, err := c.InsertUser(ctx, "a", "active")
	require.NoError(t, err)
	assert.Equal(t, 1, u.ID)

	_, err = c.InsertUser(ctx, "b", "pending")
	require.NoError(t, err)

	require.NoError(t, c.EditUser(ctx, 1, "a2", "inactive"))

	got, err := c.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, document.User{ID: 1, Username: "a2", Status: "inactive"}, got)

	doc, err := c.ListUsers(ctx, `Status == "pending"`)
	require.NoError(t, err)
	assert.Equal(t, []document.User{{ID: 2, Username: "b", Status: "pending"}}, doc.Users)

	require.NoError(t, c.DeleteUser(ctx, 2))

	err = c.DeleteUser(ctx, 2)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))

	_, err = c.InsertUser(ctx, "", "")
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
}

func TestClientUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.ListUsers(context.Background(), "")
	assert.True(t, errors.Is(err, errors.ErrorTypeTransient))
}
