// Package config はツール全体の設定を保持します。スロットルや
// デバウンスの時間はプロトコル契約ではなくチューニング値であり、
// YAMLで上書きできます。
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultCanvasSize はキャンバス（兼 正規化寸法）の既定値です。
	DefaultCanvasSize = 512
	// DefaultHistoryDepth は出力履歴の既定の保持件数です。
	DefaultHistoryDepth = 10
	// DefaultJPEGQuality は推論ペイロードのJPEG品質です。
	DefaultJPEGQuality = 75
	// DefaultBaseIterations は初回生成時の反復回数です。
	DefaultBaseIterations = 1
	// DefaultEnhanceModel は補正に使うGeminiモデルです。
	DefaultEnhanceModel = "gemini-2.5-flash-image"
)

// Preset は選択可能なベース画像のプリセットです。
type Preset struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// InferenceConfig は推論エンドポイント関連の設定です。
type InferenceConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	BaseIterations int    `yaml:"base_iterations"`
}

// Timeout は秒指定を time.Duration に変換します。0以下なら0を返し、
// クライアント側の既定値に委ねます。
func (c InferenceConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// EnhanceConfig は二次生成API（補正経路）の設定です。
type EnhanceConfig struct {
	Model string `yaml:"model"`
}

// Config はエディタ全体の設定です。
type Config struct {
	CanvasSize       int             `yaml:"canvas_size"`
	HistoryDepth     int             `yaml:"history_depth"`
	JPEGQuality      int             `yaml:"jpeg_quality"`
	StrokeIntervalMS int             `yaml:"stroke_interval_ms"`
	PromptQuietMS    int             `yaml:"prompt_quiet_ms"`
	Inference        InferenceConfig `yaml:"inference"`
	Enhance          EnhanceConfig   `yaml:"enhance"`
	Presets          []Preset        `yaml:"presets"`
}

// Default は既定値入りの設定を返します。
func Default() Config {
	return Config{
		CanvasSize:   DefaultCanvasSize,
		HistoryDepth: DefaultHistoryDepth,
		JPEGQuality:  DefaultJPEGQuality,
		Inference: InferenceConfig{
			BaseIterations: DefaultBaseIterations,
		},
		Enhance: EnhanceConfig{
			Model: DefaultEnhanceModel,
		},
	}
}

// Parse はYAMLを既定値の上に重ねて読み込み、検証して返します。
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("設定のYAML解析に失敗しました: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load はファイルから設定を読み込みます。
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	return Parse(data)
}

// Validate は設定値の整合性を確認します。
func (c Config) Validate() error {
	if c.CanvasSize <= 0 {
		return fmt.Errorf("canvas_size は正の値が必要です: %d", c.CanvasSize)
	}
	if c.HistoryDepth < 1 {
		return fmt.Errorf("history_depth は1以上が必要です: %d", c.HistoryDepth)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality は1〜100で指定してください: %d", c.JPEGQuality)
	}
	seen := make(map[string]bool, len(c.Presets))
	for _, p := range c.Presets {
		if p.Name == "" || p.Source == "" {
			return fmt.Errorf("プリセットには name と source の両方が必要です: %+v", p)
		}
		if seen[p.Name] {
			return fmt.Errorf("プリセット名が重複しています: %s", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// StrokeInterval はストローク再生成トリガーの最小間隔です。
// 0以下ならゲート側の既定値に委ねます。
func (c Config) StrokeInterval() time.Duration {
	return time.Duration(c.StrokeIntervalMS) * time.Millisecond
}

// PromptQuiet はプロンプト編集の静止期間です。
func (c Config) PromptQuiet() time.Duration {
	return time.Duration(c.PromptQuietMS) * time.Millisecond
}

// PresetMap はプリセット一覧を 名前→ソースURI の表に変換します。
func (c Config) PresetMap() map[string]string {
	m := make(map[string]string, len(c.Presets))
	for _, p := range c.Presets {
		m[p.Name] = p.Source
	}
	return m
}
