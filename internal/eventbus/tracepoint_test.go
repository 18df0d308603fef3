package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracepoint_RegisterFireUnregister(t *testing.T) {
	tp := NewTracepoint[int]("test")
	var got []int
	p := NewProbe("collect", func(v int) { got = append(got, v) })

	assert.False(t, tp.Enabled())
	require.NoError(t, tp.Register(p))
	assert.True(t, tp.Enabled())
	assert.Equal(t, []string{"collect"}, tp.Probes())

	tp.Fire(1)
	tp.Fire(2)
	require.NoError(t, tp.Unregister(p))
	tp.Fire(3)

	assert.Equal(t, []int{1, 2}, got)
	assert.False(t, tp.Enabled())
}

func TestTracepoint_DuplicateRegister(t *testing.T) {
	tp := NewTracepoint[int]("test")
	p := NewProbe("p", func(int) {})

	require.NoError(t, tp.Register(p))
	err := tp.Register(p)
	assert.ErrorIs(t, err, ErrProbeExists)
	assert.Len(t, tp.Probes(), 1)
}

func TestTracepoint_UnregisterUnknown(t *testing.T) {
	tp := NewTracepoint[int]("test")
	err := tp.Unregister(NewProbe("p", func(int) {}))
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.ErrorIs(t, tp.Unregister(nil), ErrNotRegistered)
}

func TestTracepoint_NilProbe(t *testing.T) {
	tp := NewTracepoint[int]("test")
	assert.Error(t, tp.Register(nil))
	assert.Error(t, tp.Register(NewProbe[int]("nofn", nil)))
}

func TestTracepoint_MaxProbes(t *testing.T) {
	tp := NewTracepoint[int]("test", WithMaxProbes(1))
	require.NoError(t, tp.Register(NewProbe("a", func(int) {})))
	err := tp.Register(NewProbe("b", func(int) {}))
	assert.ErrorIs(t, err, ErrTooManyProbes)
}

func TestTracepoint_FireOrder(t *testing.T) {
	tp := NewTracepoint[string]("test")
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, tp.Register(NewProbe(name, func(string) { order = append(order, name) })))
	}
	tp.Fire("x")
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTracepoint_ConcurrentFire(t *testing.T) {
	tp := NewTracepoint[int]("test")
	var mu sync.Mutex
	count := 0
	p := NewProbe("count", func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, tp.Register(p))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tp.Fire(j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, count)
}

func TestNew_NamesTracepoints(t *testing.T) {
	b := New()
	assert.Equal(t, "file_open", b.FileOpen.Name())
	assert.Equal(t, "file_close", b.FileClose.Name())
	assert.Equal(t, "file_lseek", b.FileLseek.Name())
	assert.Equal(t, "file_read", b.FileRead.Name())
	assert.Equal(t, "file_write", b.FileWrite.Name())
}
