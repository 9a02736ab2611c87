package common

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(v string) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestDebouncerCoalescesToLastValue(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(30*time.Millisecond, rec.add)

	for _, v := range []string{"d", "do", "dog", "doge"} {
		d.Submit(v)
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"doge"}, rec.values())
	assert.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(20*time.Millisecond, rec.add)

	d.Submit("a")
	assert.True(t, d.Pending())
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())
	assert.False(t, d.Pending())

	d.Submit("b")
	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b"}, rec.values())
}

func TestDebouncerZeroDelayFiresInline(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(0, rec.add)
	d.Submit("x")
	assert.Equal(t, []string{"x"}, rec.values())
}

func TestKeyedOnceRunsOncePerKey(t *testing.T) {
	var o KeyedOnce
	var calls int32
	fn := func() error { atomic.AddInt32(&calls, 1); return nil }

	ran, err := o.Do("s1", fn)
	require.NoError(t, err)
	assert.True(t, ran)
	ran, _ = o.Do("s1", fn)
	assert.False(t, ran)

	ran, _ = o.Do("s2", fn)
	assert.True(t, ran)
	// 切换 key 后旧 key 重新计算
	ran, _ = o.Do("s1", fn)
	assert.True(t, ran)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestKeyedOnceRetriesAfterFailure(t *testing.T) {
	var o KeyedOnce
	boom := errors.New("boom")

	ran, err := o.Do("s", func() error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)

	ran, err = o.Do("s", func() error { return nil })
	assert.True(t, ran)
	assert.NoError(t, err)

	ran, _ = o.Do("s", func() error { return nil })
	assert.False(t, ran)
}

func TestKeyedOnceConcurrentCallersShareRun(t *testing.T) {
	var o KeyedOnce
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.Do("s", func() error {
				atomic.AddInt32(&calls, 1)
				<-release
				return nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
