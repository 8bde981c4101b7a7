// Package enhance は現在の出力画像を二次生成API（Gemini）で補正する
// ワンショット経路です。テキスト指示とインラインPNGを組にして送り、
// 応答の最初の画像パーツを採用します。
package enhance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/image-edit-kit/pkg/domain"
	"github.com/shouni/image-edit-kit/pkg/utils"
)

// Enhancer は補正リクエストの組み立て・通信・解析を担当します。
type Enhancer struct {
	aiClient gemini.GenerativeModel
	model    string
}

// NewEnhancer は依存関係を注入して Enhancer を初期化します。
func NewEnhancer(aiClient gemini.GenerativeModel, model string) (*Enhancer, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &Enhancer{aiClient: aiClient, model: model}, nil
}

// Enhance は指示テキストと現在の出力画像をGeminiに送り、
// 返ってきた画像を返します。応答に画像パーツがない場合
// （テキストのみの応答など）は失敗として扱います。
func (e *Enhancer) Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.ImageResponse, error) {
	if req.Instruction == "" {
		return nil, fmt.Errorf("補正の指示テキストがありません")
	}

	imgPart := toPart(req.Image)
	if imgPart == nil {
		return nil, fmt.Errorf("補正対象の画像をPartに変換できませんでした")
	}

	parts := []*genai.Part{
		{Text: req.Instruction},
		imgPart,
	}

	slog.Info("Gemini補正リクエストを送信します",
		"model", e.model, "instruction_len", len(req.Instruction))

	opts := gemini.GenerateOptions{
		Seed: req.Seed,
	}

	resp, err := e.aiClient.GenerateWithParts(ctx, e.model, parts, opts)
	if err != nil {
		return nil, fmt.Errorf("Gemini補正リクエストに失敗しました: %w", err)
	}

	out, err := parseToResponse(resp, utils.DereferenceSeed(req.Seed))
	if err != nil {
		return nil, err
	}

	return &domain.ImageResponse{
		Data:     out.Data,
		MimeType: out.MimeType,
		UsedSeed: out.UsedSeed,
	}, nil
}
