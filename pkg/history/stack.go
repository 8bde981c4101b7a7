// Package history は生成結果のアンドゥ・リドゥ履歴を管理します。
// UIフレームワークに依存しない純粋な状態遷移として実装しており、
// 排他制御は呼び出し側（セッション層）の責務です。
package history

import "github.com/shouni/image-edit-kit/pkg/domain"

// DefaultDepth は履歴の既定の保持件数です。
const DefaultDepth = 10

// Stack は生成画像の線形履歴です。先頭が最新で、cursor が表示中の
// エントリを指します。不変条件: cursor は常に有効なインデックス、
// または履歴が空のときのみ -1 です。
type Stack struct {
	entries []domain.ImageResponse
	cursor  int
	depth   int
}

// New は保持件数 depth の履歴スタックを作成します。
// depth が 1 未満の場合は DefaultDepth を使用します。
func New(depth int) *Stack {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Stack{cursor: -1, depth: depth}
}

// Push は新しいエントリを先頭に挿入し、保持件数を超えた最古の
// エントリを切り捨てます。カーソルは常に最新（0）へ移動します。
func (s *Stack) Push(entry domain.ImageResponse) {
	s.entries = append([]domain.ImageResponse{entry}, s.entries...)
	if len(s.entries) > s.depth {
		s.entries = s.entries[:s.depth]
	}
	s.cursor = 0
}

// Reset は履歴全体を entry ただ1件に置き換えます。
// 入力画像を切り替えたときの初期化に使用します。
func (s *Stack) Reset(entry domain.ImageResponse) {
	s.entries = []domain.ImageResponse{entry}
	s.cursor = 0
}

// Undo はカーソルを1つ古いエントリへ移動します。
// すでに最古を指している（または履歴が空の）場合は動かず false を返します。
func (s *Stack) Undo() bool {
	if s.cursor < 0 || s.cursor >= len(s.entries)-1 {
		return false
	}
	s.cursor++
	return true
}

// Redo はカーソルを1つ新しいエントリへ移動します。
// すでに最新を指している場合は何もせず false を返します。
// 最新境界での再生成トリガーは履歴操作から切り離されています（DESIGN.md参照）。
func (s *Stack) Redo() bool {
	if s.cursor <= 0 {
		return false
	}
	s.cursor--
	return true
}

// Current はカーソル位置のエントリを返します。履歴が空なら false です。
func (s *Stack) Current() (domain.ImageResponse, bool) {
	if s.cursor < 0 || s.cursor >= len(s.entries) {
		return domain.ImageResponse{}, false
	}
	return s.entries[s.cursor], true
}

// Len は履歴の件数を返します。
func (s *Stack) Len() int {
	return len(s.entries)
}

// Cursor は表示中エントリのインデックスを返します。空のときは -1 です。
func (s *Stack) Cursor() int {
	return s.cursor
}
