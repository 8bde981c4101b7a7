package domain

// Point は正規化済みキャンバス座標系（左上原点、ピクセル単位）の1点です。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BrushSettings はブラシの描画設定を保持します。
// Color は "#rrggbb" または "#rrggbbaa" 形式の16進カラーです。
type BrushSettings struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Stroke はフリーハンドの1ストローク（座標列と描画設定）です。
// ブラウザ側のキャンバスイベントをそのまま運べるよう json タグを持ちます。
type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}
