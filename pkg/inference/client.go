// Package inference は拡散モデル推論エンドポイントとの通信を担当します。
// 合成済みキャンバス画像・プロンプト・反復回数を multipart で POST し、
// 画像1枚を受け取る不透明な HTTP 契約です。リトライは行いません。
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/image-edit-kit/pkg/domain"
)

const (
	// DefaultTimeout は推論リクエストのHTTPタイムアウトです。
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize は応答画像の読み込み上限（32MB）です。
	MaxResponseSize = 32 * 1024 * 1024

	// multipart のフィールド名（エンドポイント契約）
	fieldImage      = "image"
	fieldPrompt     = "prompt"
	fieldIterations = "num_iterations"
)

// エンドポイント通信の失敗種別です。呼び出し側はこれで分岐できます。
var (
	// ErrUnreachable はエンドポイントへ到達できなかったことを示します。
	ErrUnreachable = errors.New("推論エンドポイントに到達できません")
	// ErrRequestFailed はエンドポイントが異常ステータスを返したことを示します。
	ErrRequestFailed = errors.New("推論リクエストが失敗しました")
	// ErrNotImage は応答ボディが画像ではなかったことを示します。
	ErrNotImage = errors.New("応答が画像ではありません")
)

// Client は推論エンドポイントへのHTTPクライアントです。
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient は endpoint に向けたクライアントを作成します。
// timeout が 0 以下なら DefaultTimeout を使用します。
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Generate は合成画像とプロンプトを送信し、生成された画像を返します。
// 応答の MIME タイプはボディ先頭から判定します。
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.ImageResponse, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("送信する画像がありません")
	}

	body, contentType, err := buildForm(req)
	if err != nil {
		return nil, err
	}

	slog.Info("推論リクエストを送信します",
		"endpoint", c.endpoint,
		"prompt_len", len(req.Prompt),
		"num_iterations", req.NumIterations,
		"payload_bytes", len(req.Image))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("応答の読み込みに失敗しました: %w", err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}

	return &domain.ImageResponse{Data: data, MimeType: mimeType}, nil
}

// buildForm は multipart/form-data のリクエストボディを組み立てます。
func buildForm(req domain.GenerateRequest) (*bytes.Buffer, string, error) {
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)

	fw, err := mw.CreateFormFile(fieldImage, "canvas.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("フォームの組み立てに失敗しました: %w", err)
	}
	if _, err := fw.Write(req.Image); err != nil {
		return nil, "", fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}

	if err := mw.WriteField(fieldPrompt, req.Prompt); err != nil {
		return nil, "", fmt.Errorf("フォームの組み立てに失敗しました: %w", err)
	}
	if err := mw.WriteField(fieldIterations, strconv.Itoa(req.NumIterations)); err != nil {
		return nil, "", fmt.Errorf("フォームの組み立てに失敗しました: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("フォームの終端に失敗しました: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}
