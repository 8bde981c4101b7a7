package editor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shouni/image-edit-kit/pkg/config"
	"github.com/shouni/image-edit-kit/pkg/domain"
	"github.com/shouni/image-edit-kit/pkg/input"
)

// --- Mocks ---

// mockGenerator は呼び出し回数を数え、respond で応答を差し替えられます。
type mockGenerator struct {
	mu      sync.Mutex
	calls   int
	lastReq domain.GenerateRequest
	respond func(call int, req domain.GenerateRequest) (*domain.ImageResponse, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.ImageResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.lastReq = req
	respond := m.respond
	m.mu.Unlock()

	if respond != nil {
		return respond(call, req)
	}
	return &domain.ImageResponse{Data: []byte(fmt.Sprintf("gen-%d", call)), MimeType: "image/jpeg"}, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockRefiner は補正経路のモックです。
type mockRefiner struct {
	mu      sync.Mutex
	calls   int
	respond func(req domain.EnhanceRequest) (*domain.ImageResponse, error)
}

func (m *mockRefiner) Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.ImageResponse, error) {
	m.mu.Lock()
	m.calls++
	respond := m.respond
	m.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return &domain.ImageResponse{Data: []byte("enhanced"), MimeType: "image/png"}, nil
}

// mockHTTPClient / mockReader は入力ローダー用の最小モックです。
type mockHTTPClient struct{}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	return nil, fmt.Errorf("not used in tests")
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
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	return nil
}

// --- Helpers ---

func dummyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.CanvasSize = 32
	// テスト中の連続トリガーを邪魔しないよう、ゲートは十分短く/長くする
	cfg.StrokeIntervalMS = 1
	cfg.PromptQuietMS = 20
	cfg.Inference.Endpoint = "http://example.com/generate"
	return cfg
}

// newTestSession は実ローダー＋モック依存でセッションを組み立てます。
func newTestSession(t *testing.T, gen *mockGenerator, ref *mockRefiner, cfg config.Config) *Session {
	t.Helper()
	loader, err := input.NewLoader(&mockHTTPClient{}, &mockReader{data: dummyPNG(t, 100, 60)}, cfg.PresetMap())
	require.NoError(t, err)

	s, err := NewSession(gen, ref, loader, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}
