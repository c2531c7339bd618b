package credential

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRRendererProducesPNG(t *testing.T) {
	r := NewQRRenderer()

	img, err := r.Render("6f1c2d9e-5a8b-4c1f-9a3e-2b7d8c4e1f00")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Greater(t, decoded.Bounds().Dx(), 100)
}

func TestQRRendererIsDeterministic(t *testing.T) {
	r := NewQRRenderer()
	first, err := r.Render("user-1")
	require.NoError(t, err)
	second, err := r.Render("user-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := r.Render("user-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestQRRendererRejectsEmptyPayload(t *testing.T) {
	_, err := NewQRRenderer().Render("")
	require.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "abc.png", ObjectKey("abc"))
}
