package input

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockHTTPClient struct {
	data   []byte
	err    error
	called bool
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.called = true
	return m.data, m.err
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	panic("not used in tests")
}

func (m *mockHTTPClient) DoRequest(req *http.Request) ([]byte, error) {
	panic("not used in tests")
}

func (m *mockHTTPClient) FetchAndDecodeJSON(ctx context.Context, url string, v any) error {
	panic("not used in tests")
}

func (m *mockHTTPClient) PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error) {
	panic("not used in tests")
}

func (m *mockHTTPClient) PostRawBodyAndFetchBytes(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	panic("not used in tests")
}

func (m *mockHTTPClient) IsSafeURL(urlStr string) (bool, error) {
	panic("not used in tests")
}

func (m *mockHTTPClient) IsSecureServiceURL(serviceURL string) bool {
	panic("not used in tests")
}

type mockReader struct {
	data []byte
	err  error
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	return nil
}

// テスト用PNGを作るヘルパー
func dummyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestLoader_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("データURLのアップロードを復元できること", func(t *testing.T) {
		pngData := dummyPNG(t, 8, 8)
		src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)

		l, err := NewLoader(&mockHTTPClient{}, &mockReader{}, nil)
		require.NoError(t, err)

		got, err := l.Fetch(ctx, src)
		require.NoError(t, err)
		assert.Equal(t, pngData, got)
	})

	t.Run("画像以外のデータURLは拒否されること", func(t *testing.T) {
		src := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{}, nil)

		_, err := l.Fetch(ctx, src)
		assert.Error(t, err)
	})

	t.Run("gs:// はリーダー経由で読めること", func(t *testing.T) {
		pngData := dummyPNG(t, 8, 8)
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{data: pngData}, nil)

		got, err := l.Fetch(ctx, "gs://bucket/pic.png")
		require.NoError(t, err)
		assert.Equal(t, pngData, got)
	})

	t.Run("プライベートIPへのhttpはブロックされること", func(t *testing.T) {
		httpMock := &mockHTTPClient{data: []byte("x")}
		l, _ := NewLoader(httpMock, &mockReader{}, nil)

		_, err := l.Fetch(ctx, "http://127.0.0.1/evil.png")
		assert.Error(t, err)
		assert.False(t, httpMock.called, "ブロック時は通信しない")
	})

	t.Run("対応外スキームはエラーになること", func(t *testing.T) {
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{}, nil)
		_, err := l.Fetch(ctx, "ftp://example.com/a.png")
		assert.Error(t, err)
	})
}

func TestLoader_Resolve(t *testing.T) {
	t.Run("プリセット名がソースURIへ展開されること", func(t *testing.T) {
		presets := map[string]string{"sunset": "gs://presets/sunset.png"}
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{}, presets)

		assert.Equal(t, "gs://presets/sunset.png", l.Resolve("sunset"))
		assert.Equal(t, "gs://other/x.png", l.Resolve("gs://other/x.png"))
	})
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("完了シグナル後に正規化済み画像が得られること", func(t *testing.T) {
		pngData := dummyPNG(t, 100, 60)
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{data: pngData}, nil)

		p := l.Load(ctx, "gs://bucket/pic.png", 32)
		img, err := p.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 32, img.Bounds().Dx())
		assert.Equal(t, 32, img.Bounds().Dy())
	})

	t.Run("取得失敗はWaitでエラーとして返ること", func(t *testing.T) {
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{err: errors.New("gcs down")}, nil)

		p := l.Load(ctx, "gs://bucket/pic.png", 32)
		_, err := p.Wait(ctx)
		assert.Error(t, err)
	})

	t.Run("壊れた画像データはデコードエラーになること", func(t *testing.T) {
		l, _ := NewLoader(&mockHTTPClient{}, &mockReader{data: []byte("broken")}, nil)

		p := l.Load(ctx, "gs://bucket/pic.png", 32)
		_, err := p.Wait(ctx)
		assert.Error(t, err)
	})

	t.Run("コンテキスト失効で待機が中断されること", func(t *testing.T) {
		// Fetch が返らない状況を再現するため、呼び出し側のctxだけを切る
		slowCtx, cancel := context.WithCancel(context.Background())
		cancel()

		p := &Pending{done: make(chan struct{})} // 完了しないPending

		start := time.Now()
		_, err := p.Wait(slowCtx)
		assert.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestNewLoader(t *testing.T) {
	t.Run("nilチェック: 依存関係が足りない場合はエラーを返すこと", func(t *testing.T) {
		if _, err := NewLoader(nil, &mockReader{}, nil); err == nil {
			t.Error("expected error for nil httpClient")
		}
		if _, err := NewLoader(&mockHTTPClient{}, nil, nil); err == nil {
			t.Error("expected error for nil reader")
		}
	})
}
