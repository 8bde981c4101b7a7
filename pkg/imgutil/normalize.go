package imgutil

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// NormalizeSquare は画像を size×size の正方形に正規化します。
// 長辺を中央クロップしてアスペクト比 1:1 にそろえた後、CatmullRom で
// リサンプリングします。描画キャンバスのピクセルと画像ピクセルを
// 1:1 で対応させるための前処理です。
func NormalizeSquare(img image.Image, size int) (*image.RGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("img is required")
	}
	if size <= 0 {
		return nil, fmt.Errorf("不正な正規化サイズです: %d", size)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("画像の寸法が不正です: %dx%d", w, h)
	}

	// 中央クロップで正方形の取り出し範囲を決める
	side := w
	if h < side {
		side = h
	}
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	src := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
	return dst, nil
}
