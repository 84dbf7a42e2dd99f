package mempool

import "sync"

// Sized pools for []float32 tensor buffers used on preprocessing hot
// paths. Buffers are bucketed by size class to keep reuse rates high.

var float32Pools sync.Map // size class (int) -> *sync.Pool

const classStep = 1024

func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

// GetFloat32 returns a []float32 of length n backed by a pooled buffer.
// Return it with PutFloat32 once the data has been consumed.
func GetFloat32(n int) []float32 {
	cls := sizeClass(n)
	pAny, _ := float32Pools.LoadOrStore(cls, &sync.Pool{
		New: func() any { return make([]float32, cls) },
	})
	pool, ok := pAny.(*sync.Pool)
	if !ok {
		return make([]float32, n)
	}
	buf, ok := pool.Get().([]float32)
	if !ok || cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer obtained from GetFloat32 to its pool.
// Buffers of unknown size classes are dropped.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	cls := cap(buf)
	if cls%classStep != 0 {
		return
	}
	if pAny, ok := float32Pools.Load(cls); ok {
		if pool, ok := pAny.(*sync.Pool); ok {
			pool.Put(buf[:cap(buf)]) //nolint:staticcheck // slice header reuse is intended
		}
	}
}
