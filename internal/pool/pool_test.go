package pool

import (
	"sync"
	"testing"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

func TestPoolReuse(t *testing.T) {
	created := 0
	p := New(2, func() []int {
		created++
		return make([]int, 0, 8)
	})

	a := p.Get()
	p.Put(a)
	b := p.Get()

	if created != 1 {
		t.Errorf("expected 1 allocation, got %d", created)
	}
	if cap(b) != 8 {
		t.Errorf("expected reused slice with cap 8, got %d", cap(b))
	}

	stats := p.Stats()
	if stats.Reuses != 1 || stats.Allocations != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ReuseRate() != 0.5 {
		t.Errorf("expected reuse rate 0.5, got %f", stats.ReuseRate())
	}
}

func TestPoolBounded(t *testing.T) {
	p := New(2, func() int { return 0 })
	for i := 0; i < 5; i++ {
		p.Put(i)
	}

	if p.Len() != 2 {
		t.Errorf("expected 2 idle values, got %d", p.Len())
	}
	if d := p.Stats().Discards; d != 3 {
		t.Errorf("expected 3 discards, got %d", d)
	}

	u := p.Utilization()
	if u.MaxSize != 2 || u.CurrentSize != 2 || u.Percent() != 100 {
		t.Errorf("unexpected utilization: %+v", u)
	}
}

func TestPoolContendedFallsBack(t *testing.T) {
	p := New(4, func() int { return 42 })
	p.Put(1)

	p.mu.Lock()
	got := p.Get()
	p.Put(7)
	p.mu.Unlock()

	if got != 42 {
		t.Errorf("contended Get should allocate directly, got %d", got)
	}
	if p.Len() != 1 {
		t.Errorf("contended Put should drop the value, have %d idle", p.Len())
	}
}

func TestPoolConcurrent(t *testing.T) {
	p := New(16, func() []byte { return make([]byte, 0, 32) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				b := p.Get()
				b = append(b, byte(j))
				p.Put(b[:0])
			}
		}()
	}
	wg.Wait()

	if p.Len() > 16 {
		t.Errorf("pool exceeded bound: %d", p.Len())
	}
}

func TestPoolsResetFindings(t *testing.T) {
	pools := NewPools(4, 4)

	s := pools.Findings.Get()
	s = append(s, finding.New("a", "r", finding.SeverityLow, "f", 1, "m"))
	pools.Findings.Put(s)

	again := pools.Findings.Get()
	if len(again) != 0 {
		t.Errorf("expected reset slice, got len %d", len(again))
	}

	b := pools.Builders.Get()
	b.WriteString("hello")
	pools.Builders.Put(b)
	if pools.Builders.Get().Len() != 0 {
		t.Error("expected reset builder")
	}
}

func TestContentPoolTiers(t *testing.T) {
	cp := NewContentPool()

	tests := []struct {
		size    int64
		wantCap int
	}{
		{100, SmallBufferSize},
		{SmallBufferSize, SmallBufferSize},
		{SmallBufferSize + 1, MediumBufferSize},
		{MediumBufferSize + 1, LargeBufferSize},
		{LargeBufferSize + 1, LargeBufferSize + 1},
	}

	for _, tt := range tests {
		buf := cp.GetForSize(tt.size)
		if cap(buf) != tt.wantCap {
			t.Errorf("GetForSize(%d) cap = %d, want %d", tt.size, cap(buf), tt.wantCap)
		}
		cp.Put(buf)
	}

	gets, puts, _ := cp.small.Stats()
	if gets != 2 || puts != 2 {
		t.Errorf("expected 2 gets and 2 puts on the small tier, got %d/%d", gets, puts)
	}
}
