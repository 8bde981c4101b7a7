// Package input は入力画像の取り込みを担当します。アップロード
// （データURL）、プリセット、gs://、http(s) の各ソースを解決し、
// キャンバス寸法へ正規化した画像を非同期に用意します。
package input

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/image-edit-kit/pkg/imgutil"
)

// Loader は各ソースから画像バイト列を取得します。
type Loader struct {
	httpClient httpkit.ClientInterface
	reader     remoteio.InputReader
	presets    map[string]string // プリセット名 → ソースURI
}

// NewLoader は依存関係を注入して Loader を初期化します。
// presets は nil を許容（プリセットなし動作）。
func NewLoader(httpClient httpkit.ClientInterface, reader remoteio.InputReader, presets map[string]string) (*Loader, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	return &Loader{httpClient: httpClient, reader: reader, presets: presets}, nil
}

// Resolve はプリセット名をソースURIへ展開します。
// 未登録の名前はそのままソースとして扱います。
func (l *Loader) Resolve(src string) string {
	if uri, ok := l.presets[src]; ok {
		return uri
	}
	return src
}

// Fetch はソース文字列から画像バイト列を取得します。
func (l *Loader) Fetch(ctx context.Context, src string) ([]byte, error) {
	src = l.Resolve(src)

	switch {
	case strings.HasPrefix(src, "data:"):
		data, mimeType, err := imgutil.DecodeDataURL(src)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, fmt.Errorf("アップロードが画像ではありません: %s", mimeType)
		}
		return data, nil

	case strings.HasPrefix(src, "gs://"):
		rc, err := l.reader.Open(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("gs:// の読み込みに失敗しました: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)

	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		if safe, err := IsSafeURL(src); err != nil || !safe {
			return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
		}
		data, err := l.httpClient.FetchBytes(ctx, src)
		if err != nil {
			slog.WarnContext(ctx, "入力画像のダウンロードに失敗しました", "src", src, "error", err)
			return nil, err
		}
		return data, nil

	default:
		return nil, fmt.Errorf("対応していない画像ソースです: %q", src)
	}
}
