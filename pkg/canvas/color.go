package canvas

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// parseHexColor は "#rrggbb" / "#rrggbbaa" 形式のカラーを解釈します。
// ブラウザのカラーピッカーが返す表現に合わせています。
func parseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("不正なカラー指定です: %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("不正なカラー指定です: %q", s)
	}

	if len(hex) == 6 {
		return color.RGBA{
			R: uint8(v >> 16),
			G: uint8(v >> 8),
			B: uint8(v),
			A: 0xff,
		}, nil
	}
	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}
