// Package canvas はブラウザ側キャンバスのサーバー側ミラーです。
// 正規化済みの入力画像の上にブラシストロークを再生し、推論へ送る
// 合成画像（composite capture）を作り出します。
package canvas

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"

	"github.com/shouni/image-edit-kit/pkg/domain"
	"github.com/shouni/image-edit-kit/pkg/imgutil"
)

// DefaultSize はキャンバスの既定の一辺（ピクセル）です。
// 入力画像もこの寸法に正規化され、描画座標と1:1で対応します。
const DefaultSize = 512

// Board は入力画像と未確定ストロークを保持する描画ボードです。
// 排他制御は呼び出し側（セッション層）の責務です。
type Board struct {
	size    int
	base    image.Image
	strokes []domain.Stroke
}

// NewBoard は一辺 size のボードを作成します。
// size が 0 以下なら DefaultSize を使用します。
func NewBoard(size int) *Board {
	if size <= 0 {
		size = DefaultSize
	}
	return &Board{size: size}
}

// Size はボードの一辺を返します。
func (b *Board) Size() int {
	return b.size
}

// SetBase は入力画像をボード寸法へ正規化して差し替え、
// 既存のストロークを破棄します。
func (b *Board) SetBase(img image.Image) error {
	normalized, err := imgutil.NormalizeSquare(img, b.size)
	if err != nil {
		return fmt.Errorf("入力画像の正規化に失敗しました: %w", err)
	}
	b.base = normalized
	b.strokes = nil
	return nil
}

// HasBase は入力画像が設定済みかどうかを返します。
func (b *Board) HasBase() bool {
	return b.base != nil
}

// AddStroke はストロークをボードに積みます。座標は次の合成時に再生されます。
func (b *Board) AddStroke(st domain.Stroke) error {
	if len(st.Points) == 0 {
		return fmt.Errorf("ストロークに座標がありません")
	}
	if _, err := parseHexColor(st.Color); err != nil {
		return err
	}
	b.strokes = append(b.strokes, st)
	return nil
}

// ClearStrokes は未確定ストロークをすべて破棄します。
// 生成結果が採用されたあと、描画は新しい出力の上からやり直しになります。
func (b *Board) ClearStrokes() {
	b.strokes = nil
}

// StrokeCount は未確定ストロークの件数を返します。
func (b *Board) StrokeCount() int {
	return len(b.strokes)
}

// Composite は入力画像とストロークを1枚に平坦化します。
// 入力画像が未設定の場合はエラーを返します（capture失敗の扱い）。
func (b *Board) Composite() (image.Image, error) {
	if b.base == nil {
		return nil, fmt.Errorf("入力画像が設定されていないため合成できません")
	}

	dc := gg.NewContext(b.size, b.size)
	dc.DrawImage(b.base, 0, 0)

	for _, st := range b.strokes {
		c, err := parseHexColor(st.Color)
		if err != nil {
			return nil, err
		}
		dc.SetColor(c)

		width := st.Width
		if width <= 0 {
			width = 1
		}

		// 単点ストロークは点として打つ
		if len(st.Points) == 1 {
			p := st.Points[0]
			dc.DrawCircle(p.X, p.Y, width/2)
			dc.Fill()
			continue
		}

		dc.SetLineWidth(width)
		dc.SetLineCapRound()
		dc.SetLineJoinRound()
		dc.MoveTo(st.Points[0].X, st.Points[0].Y)
		for _, p := range st.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.Stroke()
	}

	return dc.Image(), nil
}

// ExportJPEG は合成結果を指定品質のJPEGとして書き出します。
// 推論エンドポイントへのペイロードになります。
func (b *Board) ExportJPEG(quality int) ([]byte, error) {
	img, err := b.Composite()
	if err != nil {
		return nil, err
	}
	return imgutil.EncodeJPEG(img, quality)
}
