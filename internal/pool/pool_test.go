package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)

	var count int64
	for i := 0; i < 1000; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
		})
	}
	p.Wait()

	assert.Equal(t, int64(1000), count)
}

func TestPoolNestedSubmit(t *testing.T) {
	p := New(3)

	// Each task spawns two children until depth 8: 2^9 - 1 tasks in total.
	var count int64
	var spawn func(depth int)
	spawn = func(depth int) {
		atomic.AddInt64(&count, 1)
		if depth == 0 {
			return
		}
		p.Submit(func() { spawn(depth - 1) })
		p.Submit(func() { spawn(depth - 1) })
	}

	p.Submit(func() { spawn(8) })
	p.Wait()

	assert.Equal(t, int64(511), count)
}

func TestPoolWaitWithoutTasks(t *testing.T) {
	p := New(2)
	p.Wait()
}

func TestSequentialPool(t *testing.T) {
	p := New(1)
	assert.True(t, p.Sequential())

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	p.Submit(func() {
		record("a")
		p.Submit(func() {
			record("a/1")
			p.Submit(func() { record("a/1/x") })
		})
		p.Submit(func() { record("a/2") })
	})
	p.Submit(func() { record("b") })
	p.Wait()

	assert.Equal(t, []string{"a", "a/1", "a/1/x", "a/2", "b"}, order)
}

func TestNewDefaultsToCPUCount(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), New(0).Workers())
	assert.Equal(t, runtime.NumCPU(), New(-3).Workers())
}
