package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_RegisterAndNew(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	err := registry.Register("demo.counting", func() Adapter {
		return &countingAdapter{total: 3}
	})
	require.NoError(t, err)

	first, err := registry.New("demo.counting")
	require.NoError(t, err)
	second, err := registry.New("demo.counting")
	require.NoError(t, err)

	// 每次 New 都是全新实例
	assert.NotSame(t, first, second)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	require.NoError(t, registry.Register("demo.counting", func() Adapter { return &countingAdapter{} }))
	err := registry.Register("demo.counting", func() Adapter { return &countingAdapter{} })
	assert.Error(t, err, "重复注册应该报错")
}

func TestRegistry_UnknownType(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	_, err := registry.New("demo.missing")
	assert.Error(t, err)
}

func TestRegistry_InvalidRegistration(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	assert.Error(t, registry.Register("", func() Adapter { return &countingAdapter{} }))
	assert.Error(t, registry.Register("demo.counting", nil))
}

func TestRegistry_TypesSorted(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	registry.MustRegister("b.task", func() Adapter { return &countingAdapter{} })
	registry.MustRegister("a.task", func() Adapter { return &countingAdapter{} })
	registry.MustRegister("c.task", func() Adapter { return &countingAdapter{} })

	assert.Equal(t, []string{"a.task", "b.task", "c.task"}, registry.Types())
}
