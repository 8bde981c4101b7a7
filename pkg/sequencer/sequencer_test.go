package sequencer

import (
	"sync"
	"testing"
)

func TestSequencer_LastWriterWins(t *testing.T) {
	t.Run("仕様例: R1(t=100)より後に発行されたR2(t=200)が先に完了した場合", func(t *testing.T) {
		clock := int64(0)
		ticks := []int64{100, 200}
		s := NewWithClock(func() int64 {
			v := ticks[clock]
			clock++
			return v
		})

		r1 := s.Dispatch() // t=100
		r2 := s.Dispatch() // t=200

		// R2 が先に完了して採用される
		if !s.Accept(r2) {
			t.Fatal("R2 should be accepted")
		}
		// 遅れて完了した R1 は 100 < 200 のため破棄される
		if s.Accept(r1) {
			t.Error("stale R1 must be discarded")
		}
		if got := s.LastAccepted(); got != r2 {
			t.Errorf("last accepted: want %d, got %d", r2, got)
		}
	})

	t.Run("順序どおりの完了では両方採用されること", func(t *testing.T) {
		s := New()
		r1 := s.Dispatch()
		r2 := s.Dispatch()

		if !s.Accept(r1) {
			t.Error("R1 should be accepted")
		}
		if !s.Accept(r2) {
			t.Error("R2 should be accepted after R1")
		}
	})

	t.Run("同じトークンの二重採用は拒否されること", func(t *testing.T) {
		s := New()
		r := s.Dispatch()
		if !s.Accept(r) {
			t.Fatal("first accept should succeed")
		}
		if s.Accept(r) {
			t.Error("second accept of the same token must fail")
		}
	})
}

func TestSequencer_MonotonicDispatch(t *testing.T) {
	t.Run("クロックが進まなくてもトークンは厳密に増加すること", func(t *testing.T) {
		s := NewWithClock(func() int64 { return 42 })

		prev := s.Dispatch()
		for i := 0; i < 10; i++ {
			cur := s.Dispatch()
			if cur <= prev {
				t.Fatalf("token not strictly increasing: %d -> %d", prev, cur)
			}
			prev = cur
		}
	})

	t.Run("並行Dispatchでもトークンが重複しないこと", func(t *testing.T) {
		s := New()
		const n = 100

		var mu sync.Mutex
		seen := make(map[Token]bool, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tok := s.Dispatch()
				mu.Lock()
				defer mu.Unlock()
				if seen[tok] {
					t.Errorf("duplicate token: %d", tok)
				}
				seen[tok] = true
			}()
		}
		wg.Wait()
	})
}

func TestSequencer_AcceptedMaximum(t *testing.T) {
	t.Run("完了順に関わらず採用されるのは常に最大トークンであること", func(t *testing.T) {
		tick := int64(0)
		s := NewWithClock(func() int64 {
			tick += 10
			return tick
		})

		tokens := make([]Token, 5)
		for i := range tokens {
			tokens[i] = s.Dispatch()
		}

		// 完了順: 2, 4, 0, 3, 1
		order := []int{2, 4, 0, 3, 1}
		var acceptedMax Token
		for _, i := range order {
			if s.Accept(tokens[i]) {
				if tokens[i] < acceptedMax {
					t.Errorf("accepted token %d older than previous max %d", tokens[i], acceptedMax)
				}
				acceptedMax = tokens[i]
			}
		}
		if acceptedMax != tokens[4] {
			t.Errorf("final accepted should be the max token %d, got %d", tokens[4], acceptedMax)
		}
	})
}
