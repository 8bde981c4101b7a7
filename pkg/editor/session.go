// Package editor は1枚の編集セッションを統括するコントローラです。
// 元のページが抱えていた可変状態（プロンプト、入力画像、ブラシ、
// ローディングフラグ、出力履歴）を1つの状態オブジェクトに集約し、
// 履歴とシーケンサーへの遷移を純粋な部品に委譲します。
package editor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shouni/image-edit-kit/pkg/canvas"
	"github.com/shouni/image-edit-kit/pkg/config"
	"github.com/shouni/image-edit-kit/pkg/domain"
	"github.com/shouni/image-edit-kit/pkg/history"
	"github.com/shouni/image-edit-kit/pkg/imgutil"
	"github.com/shouni/image-edit-kit/pkg/input"
	"github.com/shouni/image-edit-kit/pkg/sequencer"
)

// Generator は推論エンドポイントとの通信を抽象化するインターフェースです。
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (*domain.ImageResponse, error)
}

// Refiner は二次生成API（補正経路）を抽象化するインターフェースです。
type Refiner interface {
	Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.ImageResponse, error)
}

// SourceLoader は入力画像の非同期読み込みを抽象化するインターフェースです。
type SourceLoader interface {
	Load(ctx context.Context, src string, size int) *input.Pending
}

// Snapshot はセッション状態のUI向けスナップショットです。
type Snapshot struct {
	ID            string               `json:"id"`
	Prompt        string               `json:"prompt"`
	Source        string               `json:"source"`
	Loading       bool                 `json:"loading"`
	Iterations    int                  `json:"iterations"`
	HistoryLen    int                  `json:"history_len"`
	HistoryCursor int                  `json:"history_cursor"`
	Brush         domain.BrushSettings `json:"brush"`
	MobileLayout  bool                 `json:"mobile_layout"`
}

// Session は編集セッション1件です。すべての状態変更は1つのミューテックスで
// 直列化され（単一イベントループの代替）、ネットワーク呼び出しだけが
// ロックの外で走ります。応答はシーケンサーの鮮度判定を通って戻ります。
type Session struct {
	id        string
	generator Generator
	refiner   Refiner
	loader    SourceLoader
	cfg       config.Config

	mu           sync.Mutex
	board        *canvas.Board
	hist         *history.Stack
	seq          *sequencer.Sequencer
	strokeGate   *sequencer.Throttle
	promptGate   *sequencer.Debounce
	prompt       string
	brush        domain.BrushSettings
	source       string
	inFlight     int
	loadingInput bool
	mobileLayout bool
	iterations   int
}

// NewSession は依存関係を注入してセッションを初期化します。
func NewSession(gen Generator, ref Refiner, loader SourceLoader, cfg config.Config) (*Session, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if ref == nil {
		return nil, fmt.Errorf("refiner is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	return &Session{
		id:         uuid.NewString(),
		generator:  gen,
		refiner:    ref,
		loader:     loader,
		cfg:        cfg,
		board:      canvas.NewBoard(cfg.CanvasSize),
		hist:       history.New(cfg.HistoryDepth),
		seq:        sequencer.New(),
		strokeGate: sequencer.NewThrottle(cfg.StrokeInterval()),
		promptGate: sequencer.NewDebounce(cfg.PromptQuiet()),
		brush:      domain.BrushSettings{Color: "#000000", Width: 8},
	}, nil
}

// ID はセッション識別子を返します。
func (s *Session) ID() string {
	return s.id
}

// SetImage は入力画像を切り替えます。履歴は新しいソース1件に
// リセットされ、読み込み完了シグナルを待ってから、ちょうど1回の
// 生成をトリガーします。
func (s *Session) SetImage(ctx context.Context, src string) error {
	s.mu.Lock()
	s.source = src
	s.loadingInput = true
	s.mu.Unlock()

	pending := s.loader.Load(ctx, src, s.cfg.CanvasSize)
	img, err := pending.Wait(ctx)
	if err != nil {
		s.mu.Lock()
		s.loadingInput = false
		s.mu.Unlock()
		return fmt.Errorf("入力画像の読み込みに失敗しました: %w", err)
	}

	if err := s.applyNewBase(img); err != nil {
		return err
	}

	return s.Generate(ctx, false, 0)
}

// applyNewBase は正規化済み画像をボードへ反映し、履歴を1件に初期化します。
func (s *Session) applyNewBase(img image.Image) error {
	pngData, err := imgutil.EncodePNG(img)
	if err != nil {
		s.mu.Lock()
		s.loadingInput = false
		s.mu.Unlock()
		return fmt.Errorf("入力画像のエンコードに失敗しました: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.board.SetBase(img); err != nil {
		s.loadingInput = false
		return err
	}
	s.hist.Reset(domain.ImageResponse{Data: pngData, MimeType: "image/png"})
	s.iterations = 0
	s.loadingInput = false
	return nil
}

// Generate は再生成を1回実行します。useOutput が真なら現在の出力画像を、
// そうでなければキャンバス合成をペイロードにします。応答はディスパッチ
// 時刻の比較を通過した場合のみ採用され、追い越された応答は静かに
// 破棄されます。
func (s *Session) Generate(ctx context.Context, useOutput bool, iterations int) error {
	s.mu.Lock()

	if iterations < 1 {
		base := s.cfg.Inference.BaseIterations
		if base < 1 {
			base = config.DefaultBaseIterations
		}
		// 採用済みの生成回数を積み上げて送る。生成を重ねるほど強くかかる。
		iterations = base + s.iterations
	}

	var payload []byte
	var err error
	if useOutput {
		cur, ok := s.hist.Current()
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("出力画像がまだありません")
		}
		payload, err = imgutil.CompressToJPEG(cur.Data, s.cfg.JPEGQuality)
	} else {
		payload, err = s.board.ExportJPEG(s.cfg.JPEGQuality)
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("合成画像のキャプチャに失敗しました: %w", err)
	}

	prompt := s.prompt
	token := s.seq.Dispatch()
	s.inFlight++
	s.mu.Unlock()

	resp, genErr := s.generator.Generate(ctx, domain.GenerateRequest{
		Image:         payload,
		Prompt:        prompt,
		NumIterations: iterations,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if genErr != nil {
		slog.WarnContext(ctx, "再生成リクエストが失敗しました", "session", s.id, "error", genErr)
		return fmt.Errorf("再生成に失敗しました: %w", genErr)
	}

	if !s.seq.Accept(token) {
		// より新しいリクエストが先に採用済み。この応答は捨てる。
		return nil
	}

	s.hist.Push(*resp)
	s.board.ClearStrokes()
	s.iterations++
	return nil
}

// Enhance は現在の出力画像と指示テキストを二次生成APIへ送り、
// 成功時は生成経路と同じ鮮度判定・履歴追加を適用します。失敗時は
// ログのみで状態は変わらず、直前の出力が表示されたまま残ります。
// seed はnil可で、指定時のみ再現性のために伝搬されます。
func (s *Session) Enhance(ctx context.Context, instruction string, seed *int64) error {
	s.mu.Lock()
	cur, ok := s.hist.Current()
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("補正する出力画像がありません")
	}

	pngData := cur.Data
	if cur.MimeType != "image/png" {
		img, err := imgutil.DecodeImage(cur.Data)
		if err == nil {
			pngData, err = imgutil.EncodePNG(img)
		}
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("出力画像のPNG変換に失敗しました: %w", err)
		}
	}

	token := s.seq.Dispatch()
	s.inFlight++
	s.mu.Unlock()

	resp, enhErr := s.refiner.Enhance(ctx, domain.EnhanceRequest{
		Instruction: instruction,
		Image:       pngData,
		Seed:        seed,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if enhErr != nil {
		slog.WarnContext(ctx, "補正リクエストが失敗しました", "session", s.id, "error", enhErr)
		return fmt.Errorf("補正に失敗しました: %w", enhErr)
	}

	if !s.seq.Accept(token) {
		return nil
	}

	s.hist.Push(*resp)
	s.board.ClearStrokes()
	return nil
}

// AddStroke はストロークをボードへ積み、スロットルを通過した場合のみ
// 再生成をトリガーします。色や太さが未指定なら現在のブラシ設定で補います。
func (s *Session) AddStroke(ctx context.Context, st domain.Stroke) error {
	s.mu.Lock()
	if st.Color == "" {
		st.Color = s.brush.Color
	}
	if st.Width <= 0 {
		st.Width = s.brush.Width
	}
	if err := s.board.AddStroke(st); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if !s.strokeGate.Allow() {
		return nil
	}
	return s.Generate(ctx, false, 0)
}

// SetPrompt はプロンプトを更新します。再生成は入力が静止してから
// 1回だけ発火します。
func (s *Session) SetPrompt(text string) {
	s.mu.Lock()
	s.prompt = text
	s.mu.Unlock()

	s.promptGate.Signal(func() {
		// デバウンス発火時点では元のリクエストスコープは終わっている
		if err := s.Generate(context.Background(), false, 0); err != nil {
			slog.Warn("プロンプト編集による再生成に失敗しました", "session", s.id, "error", err)
		}
	})
}

// SetBrush はブラシ設定を更新します。
func (s *Session) SetBrush(b domain.BrushSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Color != "" {
		s.brush.Color = b.Color
	}
	if b.Width > 0 {
		s.brush.Width = b.Width
	}
}

// SetMobileLayout はモバイルレイアウトのフラグを更新します。
func (s *Session) SetMobileLayout(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mobileLayout = v
}

// Undo は1つ古い出力へ移動します。動いたかどうかと移動後の出力を返します。
func (s *Session) Undo() (domain.ImageResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := s.hist.Undo()
	cur, _ := s.hist.Current()
	return cur, moved
}

// Redo は1つ新しい出力へ移動します。最新境界では何もしません
// （再生成は Generate で明示的に行います）。
func (s *Session) Redo() (domain.ImageResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := s.hist.Redo()
	cur, _ := s.hist.Current()
	return cur, moved
}

// Output は表示中の出力画像を返します。
func (s *Session) Output() (domain.ImageResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Current()
}

// ExportPNG は表示中の出力をダウンロード用のPNGとファイル名で返します。
func (s *Session) ExportPNG() ([]byte, string, error) {
	s.mu.Lock()
	cur, ok := s.hist.Current()
	s.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("ダウンロードできる出力画像がありません")
	}

	data := cur.Data
	if cur.MimeType != "image/png" {
		img, err := imgutil.DecodeImage(cur.Data)
		if err != nil {
			return nil, "", err
		}
		data, err = imgutil.EncodePNG(img)
		if err != nil {
			return nil, "", err
		}
	}

	name := fmt.Sprintf("output-%s.png", s.id[:8])
	return data, name, nil
}

// State は現在のセッション状態のスナップショットを返します。
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		Prompt:        s.prompt,
		Source:        s.source,
		Loading:       s.inFlight > 0 || s.loadingInput,
		Iterations:    s.iterations,
		HistoryLen:    s.hist.Len(),
		HistoryCursor: s.hist.Cursor(),
		Brush:         s.brush,
		MobileLayout:  s.mobileLayout,
	}
}

// Close は保留中のデバウンス実行を止めます。
func (s *Session) Close() {
	s.promptGate.Stop()
}
