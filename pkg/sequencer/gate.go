package sequencer

import (
	"sync"
	"time"
)

const (
	// DefaultStrokeInterval は描画ストロークによる再生成トリガーの最小間隔です。
	DefaultStrokeInterval = 400 * time.Millisecond

	// DefaultPromptQuiet はプロンプト編集が落ち着いたとみなすまでの時間です。
	DefaultPromptQuiet = 800 * time.Millisecond
)

// Throttle は一定間隔あたり1回までトリガーを通すゲートです。
// 先頭のトリガーを即時に通し、間隔内の後続を落とします。
// 描画ストロークの再生成トリガーを律速するために使います。
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

// NewThrottle は指定間隔の Throttle を作成します。
// interval が 0 以下なら DefaultStrokeInterval を使用します。
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultStrokeInterval
	}
	return &Throttle{interval: interval, now: time.Now}
}

// NewThrottleWithClock はテスト用にクロックを注入します。
func NewThrottleWithClock(interval time.Duration, now func() time.Time) *Throttle {
	t := NewThrottle(interval)
	if now != nil {
		t.now = now
	}
	return t
}

// Allow はトリガーを通してよいか判定します。前回通過から
// interval 以上経過していれば true を返し、通過時刻を更新します。
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.now()
	if !t.last.IsZero() && n.Sub(t.last) < t.interval {
		return false
	}
	t.last = n
	return true
}

// Debounce は最後のシグナルから一定の静止期間が経過したときに
// 1回だけ関数を実行するゲートです。プロンプト編集のように連続して
// 届くイベントを、タイピングが止まるまで溜めるために使います。
type Debounce struct {
	mu    sync.Mutex
	quiet time.Duration
	timer *time.Timer
}

// NewDebounce は静止期間 quiet の Debounce を作成します。
// quiet が 0 以下なら DefaultPromptQuiet を使用します。
func NewDebounce(quiet time.Duration) *Debounce {
	if quiet <= 0 {
		quiet = DefaultPromptQuiet
	}
	return &Debounce{quiet: quiet}
}

// Signal はイベントの到着を通知します。静止期間内に再度呼ばれると
// タイマーが巻き戻り、fn の実行は先送りされます。fn は独立した
// ゴルーチンで1回だけ呼ばれます。
func (d *Debounce) Signal(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, fn)
}

// Stop は保留中の実行を取り消します。セッション終了時に呼びます。
func (d *Debounce) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
