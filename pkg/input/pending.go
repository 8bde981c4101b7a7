package input

import (
	"context"
	"fmt"
	"image"

	"github.com/shouni/image-edit-kit/pkg/imgutil"
)

// Pending は非同期の画像読み込み1件を表します。完了はチャネルの
// クローズで明示的に通知されます。ポーリングは行いません。
type Pending struct {
	done chan struct{}
	img  *image.RGBA
	err  error
}

// Load は src の取得・デコード・size×size への正規化をバックグラウンドで
// 開始し、完了シグナル付きの Pending を返します。
func (l *Loader) Load(ctx context.Context, src string, size int) *Pending {
	p := &Pending{done: make(chan struct{})}

	go func() {
		defer close(p.done)

		data, err := l.Fetch(ctx, src)
		if err != nil {
			p.err = err
			return
		}

		img, err := imgutil.DecodeImage(data)
		if err != nil {
			p.err = err
			return
		}

		normalized, err := imgutil.NormalizeSquare(img, size)
		if err != nil {
			p.err = err
			return
		}
		p.img = normalized
	}()

	return p
}

// Wait は読み込み完了かコンテキストの失効まで待機し、
// 正規化済みの画像を返します。
func (p *Pending) Wait(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("画像の読み込みを待機中に中断されました: %w", ctx.Err())
	case <-p.done:
	}

	if p.err != nil {
		return nil, p.err
	}
	return p.img, nil
}
