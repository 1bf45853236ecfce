package covers

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/metadata/kyobo"
)

type fakeSource struct {
	data []byte
	err  error
}

func (f *fakeSource) GetBytes(context.Context, string, ...kyobo.RequestOption) ([]byte, string, error) {
	return f.data, "", f.err
}

func coverPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 45))
	for y := range 45 {
		for x := range 30 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: 90, B: uint8(y * 5), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	data := coverPNG(t)
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	client := kyobo.NewClient(kyobo.ClientConfig{MaxRetries: 1}, nil)
	t.Cleanup(client.Close)
	d := NewDownloader(client, "https://product.kyobobook.co.kr/", nil)

	url := server.URL + "/sih/fit-in/458x0/pdt/9788937460449.jpg"
	cover, err := d.Download(context.Background(), url)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/sih/fit-in/458x0/pdt/9788937460449.jpg", got.URL.Path)
	assert.Equal(t, "https://product.kyobobook.co.kr/", got.Header.Get("Referer"))
	assert.Contains(t, got.Header.Get("Accept"), "image/")

	assert.Equal(t, "image/png", cover.MIME)
	assert.Equal(t, 30, cover.Width)
	assert.Equal(t, 45, cover.Height)
	assert.Equal(t, int64(len(data)), cover.Size)
	assert.NotEmpty(t, cover.BlurHash)

	require.True(t, strings.HasPrefix(cover.DataURI, "data:image/png;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(cover.DataURI, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDownload_EmptyURL(t *testing.T) {
	_, err := NewDownloader(&fakeSource{}, "", nil).Download(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestDownload_NotAnImage(t *testing.T) {
	d := NewDownloader(&fakeSource{data: []byte("<html>404</html>")}, "", nil)

	_, err := d.Download(context.Background(), "https://contents.kyobobook.co.kr/missing.jpg")
	assert.ErrorIs(t, err, errors.ErrParse)
}

func TestDownload_EmptyBody(t *testing.T) {
	d := NewDownloader(&fakeSource{data: []byte{}}, "", nil)

	_, err := d.Download(context.Background(), "https://contents.kyobobook.co.kr/a.jpg")
	assert.ErrorIs(t, err, errors.ErrParse)
}

func TestDownload_UndecodableStillEmbedded(t *testing.T) {
	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x02}, 32)...)
	d := NewDownloader(&fakeSource{data: data}, "", nil)

	cover, err := d.Download(context.Background(), "https://contents.kyobobook.co.kr/b.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", cover.MIME)
	assert.Zero(t, cover.Width)
	assert.Empty(t, cover.BlurHash)
	assert.True(t, strings.HasPrefix(cover.DataURI, "data:image/png;base64,"))
}

func TestDownload_SourceError(t *testing.T) {
	d := NewDownloader(&fakeSource{err: errors.NetworkStatus(404, "not found")}, "", nil)

	_, err := d.Download(context.Background(), "https://contents.kyobobook.co.kr/c.jpg")
	assert.ErrorIs(t, err, errors.ErrNetwork)
}

func TestDataURI(t *testing.T) {
	assert.Equal(t, "data:image/gif;base64,R0lG", DataURI("image/gif", []byte("GIF")))
}
