package document

import (
	"encoding/base64"
	"testing"

	"ghusers/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoded(t *testing.T, raw string) []byte {
	t.Helper()
	return []byte(base64.StdEncoding.EncodeToString([]byte(raw)))
}

func TestCodec(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		docs := []Document{
			{Users: []User{}},
			{Users: []User{{ID: 1, Username: "a", Status: "active"}}},
			{Users: []User{
				{ID: 3, Username: "ç<é>&", Status: "pending"},
				{ID: 7, Username: "", Status: "inactive"},
			}},
		}

		for _, d := range docs {
			payload, err := Encode(d)
			require.NoError(t, err)

			got, err := Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, d, got)
		}
	})

	t.Run("CanonicalForm", func(t *testing.T) {
		doc := Document{Users: []User{{ID: 1, Username: "a", Status: "active"}}}
		payload, err := Encode(doc)
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(string(payload))
		require.NoError(t, err)
		assert.Equal(t, `{"users":[{"id":1,"username":"a","status":"active"}]}`, string(raw))

		// A pretty-printed file re-encodes to the same canonical bytes.
		pretty := encoded(t, "{\n  \"users\": [\n    {\"status\": \"active\", \"id\": 1, \"username\": \"a\"}\n  ]\n}")
		decoded, err := Decode(pretty)
		require.NoError(t, err)
		again, err := Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, payload, again)
	})

	t.Run("NilUsersEncodeAsEmptyArray", func(t *testing.T) {
		payload, err := Encode(Document{})
		require.NoError(t, err)
		raw, _ := base64.StdEncoding.DecodeString(string(payload))
		assert.Equal(t, `{"users":[]}`, string(raw))
	})

	t.Run("WrappedBase64", func(t *testing.T) {
		payload := encoded(t, `{"users":[{"id":1,"username":"a","status":"active"}]}`)
		wrapped := append([]byte{}, payload[:20]...)
		wrapped = append(wrapped, '\n')
		wrapped = append(wrapped, payload[20:]...)
		wrapped = append(wrapped, '\n')

		doc, err := Decode(wrapped)
		require.NoError(t, err)
		assert.Len(t, doc.Users, 1)
	})

	t.Run("DecodeErrors", func(t *testing.T) {
		tests := []struct {
			name    string
			payload []byte
		}{
			{"not base64", []byte("%%%")},
			{"not json", encoded(t, "users: []")},
			{"wrong shape", encoded(t, `{"users":{"id":1}}`)},
			{"unknown field", encoded(t, `{"users":[],"extra":1}`)},
			{"trailing data", encoded(t, `{"users":[]} {}`)},
			{"duplicate ids", encoded(t, `{"users":[{"id":1,"username":"a","status":"x"},{"id":1,"username":"b","status":"y"}]}`)},
			{"zero id", encoded(t, `{"users":[{"id":0,"username":"a","status":"x"}]}`)},
			{"empty", []byte{}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Decode(tt.payload)
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrorTypeDecode))
			})
		}
	})
}

func TestInsert(t *testing.T) {
	t.Run("MaxPlusOne", func(t *testing.T) {
		doc := Document{Users: []User{{ID: 1, Username: "a"}, {ID: 5, Username: "b"}}}
		next, u, err := Insert(doc, "c", "pending")
		require.NoError(t, err)
		assert.Equal(t, 6, u.ID)
		assert.Equal(t, u, next.Users[2])
		assert.Len(t, doc.Users, 2, "input must not change")
	})

	t.Run("EmptyDocument", func(t *testing.T) {
		_, u, err := Insert(Document{}, "a", "active")
		require.NoError(t, err)
		assert.Equal(t, 1, u.ID)
	})

	t.Run("GapBelowMaximum", func(t *testing.T) {
		doc := Document{}
		var err error
		for _, name := range []string{"a", "b", "c"} {
			doc, _, err = Insert(doc, name, "active")
			require.NoError(t, err)
		}
		doc, err = Remove(doc, 2)
		require.NoError(t, err)

		next, u, err := Insert(doc, "d", "active")
		require.NoError(t, err)
		assert.Equal(t, 4, u.ID)

		seen := map[int]bool{}
		for _, existing := range next.Users {
			assert.False(t, seen[existing.ID])
			seen[existing.ID] = true
			if existing.ID != u.ID {
				assert.Less(t, existing.ID, u.ID)
			}
		}
	})

	t.Run("MaximumRemoved", func(t *testing.T) {
		doc := Document{Users: []User{{ID: 1, Username: "a"}, {ID: 2, Username: "b"}}}
		doc, err := Remove(doc, 2)
		require.NoError(t, err)

		_, u, err := Insert(doc, "c", "active")
		require.NoError(t, err)
		assert.Equal(t, 2, u.ID)
	})
}

func TestUpdate(t *testing.T) {
	doc := Document{Users: []User{
		{ID: 1, Username: "a", Status: "active"},
		{ID: 2, Username: "b", Status: "pending"},
	}}

	next, err := Update(doc, 1, "a2", "inactive")
	require.NoError(t, err)
	assert.Equal(t, User{ID: 1, Username: "a2", Status: "inactive"}, next.Users[0])
	assert.Equal(t, doc.Users[1], next.Users[1])
	assert.Equal(t, "a", doc.Users[0].Username, "input must not change")

	same, err := Update(doc, 9, "x", "y")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
	assert.Equal(t, doc, same)
}

func TestRemove(t *testing.T) {
	doc := Document{Users: []User{
		{ID: 1, Username: "a", Status: "active"},
		{ID: 2, Username: "b", Status: "pending"},
		{ID: 3, Username: "c", Status: "pending"},
	}}

	next, err := Remove(doc, 2)
	require.NoError(t, err)
	assert.Equal(t, []User{doc.Users[0], doc.Users[2]}, next.Users)
	assert.Len(t, doc.Users, 3)

	_, err = Remove(next, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
}

func TestScenarios(t *testing.T) {
	base, err := Decode(encoded(t, `{"users":[{"id":1,"username":"a","status":"active"}]}`))
	require.NoError(t, err)

	// A
	a, _, err := Insert(base, "b", "pending")
	require.NoError(t, err)
	assert.Equal(t, []User{{1, "a", "active"}, {2, "b", "pending"}}, a.Users)

	// B
	b, err := Update(a, 1, "a2", "inactive")
	require.NoError(t, err)
	assert.Equal(t, []User{{1, "a2", "inactive"}, {2, "b", "pending"}}, b.Users)

	// C
	c, err := Remove(b, 2)
	require.NoError(t, err)
	assert.Equal(t, []User{{1, "a2", "inactive"}}, c.Users)

	again, err := Remove(c, 2)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
	assert.Equal(t, c, again)
}
