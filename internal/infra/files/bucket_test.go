package files

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBucket(t *testing.T) *LocalBucket {
	t.Helper()
	b, err := NewLocalBucket(t.TempDir(), "http://localhost:8080/", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return b
}

func TestPutOpenRoundTrip(t *testing.T) {
	b := newBucket(t)
	require.NoError(t, b.Put(context.Background(), "avatars/t1/s1.png", strings.NewReader("first")))
	require.NoError(t, b.Put(context.Background(), "avatars/t1/s1.png", strings.NewReader("second")))

	f, err := b.Open("avatars/t1/s1.png")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	b := newBucket(t)
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", "a//b", `a\b`, "."} {
		err := b.Put(context.Background(), key, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestSignedURLVerify(t *testing.T) {
	b := newBucket(t)
	link, err := b.SignedURL("backups/t1/roster.json", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:8080/files?token="))

	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")

	key, err := b.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "backups/t1/roster.json", key)

	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLink)

	_, err = b.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidLink)
}
