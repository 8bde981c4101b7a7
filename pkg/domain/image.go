package domain

// GenerateRequest は推論エンドポイントへ送る1回分の再生成要求です。
// Image にはキャンバスと入力画像を合成した JPEG を格納します。
type GenerateRequest struct {
	Image         []byte
	Prompt        string
	NumIterations int
}

// EnhanceRequest は二次生成APIによる出力画像の補正要求です。
// Seed は nil でランダム、値指定で再現性を固定します。
type EnhanceRequest struct {
	Instruction string
	Image       []byte // 現在の出力画像（PNG）
	Seed        *int64
}

// ImageResponse は生成された画像データとそのメタデータです。
type ImageResponse struct {
	Data     []byte
	MimeType string
	UsedSeed int64 // 戻り値は情報欠落を防ぐため int64
}
