// Package sequencer は再生成リクエストの順序制御を担当します。
// 複数のリクエストが同時に飛んでいても、最後に「発行」されたものの
// 応答だけを採用する last-writer-wins 方式です。途中で追い越された
// リクエストは中断されず、応答が静かに破棄されます。
package sequencer

import (
	"sync"
	"time"
)

// Token はリクエスト発行時刻を表す単調増加のディスパッチトークンです。
type Token int64

// Sequencer は発行済みトークンと最後に採用したトークンを突き合わせ、
// 応答の新旧を判定します。
type Sequencer struct {
	mu             sync.Mutex
	now            func() int64
	lastDispatched int64
	lastAccepted   int64
}

// New は実時間（ナノ秒）をトークン源とする Sequencer を作成します。
func New() *Sequencer {
	return &Sequencer{now: func() int64 { return time.Now().UnixNano() }}
}

// NewWithClock はテスト用にクロックを注入して Sequencer を作成します。
func NewWithClock(now func() int64) *Sequencer {
	if now == nil {
		return New()
	}
	return &Sequencer{now: now}
}

// Dispatch はリクエスト発行を記録し、そのトークンを返します。
// クロックの分解能に関わらず、トークンは厳密に増加します。
func (s *Sequencer) Dispatch() Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	if t <= s.lastDispatched {
		t = s.lastDispatched + 1
	}
	s.lastDispatched = t
	return Token(t)
}

// Accept は応答の採用可否を判定します。トークンが最後に採用した
// ものより新しい場合のみ true を返し、同時に採用済みとして記録します。
// false の場合、その応答は破棄してください。
func (s *Sequencer) Accept(t Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(t) <= s.lastAccepted {
		return false
	}
	s.lastAccepted = int64(t)
	return true
}

// LastAccepted は最後に採用したトークンを返します。未採用なら 0 です。
func (s *Sequencer) LastAccepted() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Token(s.lastAccepted)
}
