package imgutil

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeDataURL は "data:image/png;base64,...." 形式のデータURLを
// バイト列に復元し、宣言されていた MIME タイプとともに返します。
// ファイルアップロードはブラウザ側でデータURLとして読み込まれるため、
// その受け口になります。
func DecodeDataURL(s string) ([]byte, string, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, "", fmt.Errorf("データURLではありません")
	}

	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("データURLの形式が不正です")
	}

	mimeType, _, _ := strings.Cut(meta, ";")
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("base64以外のデータURLには対応していません")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("base64デコードに失敗しました: %w", err)
	}
	return data, mimeType, nil
}
