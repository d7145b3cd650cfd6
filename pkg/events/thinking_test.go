package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThinkingRegistry(t *testing.T) {
	t.Run("push then drain in order", func(t *testing.T) {
		r := NewThinkingRegistry()
		r.Create("a1")

		r.Push("a1", ThinkingChunk{Content: "pirmas"})
		r.Push("a1", ThinkingChunk{Content: "antras"})
		r.Push("a1", ThinkingChunk{Done: true})

		chunks := r.Drain("a1")
		require.Len(t, chunks, 3)
		assert.Equal(t, "pirmas", chunks[0].Content)
		assert.Equal(t, "antras", chunks[1].Content)
		assert.True(t, chunks[2].Done)

		assert.Nil(t, r.Drain("a1"), "second drain is empty")
	})

	t.Run("create is idempotent", func(t *testing.T) {
		r := NewThinkingRegistry()
		r.Create("a1")
		r.Push("a1", ThinkingChunk{Content: "x"})
		r.Create("a1")

		assert.Len(t, r.Drain("a1"), 1)
	})

	t.Run("overflow drops oldest", func(t *testing.T) {
		r := NewThinkingRegistry()
		r.Create("a1")

		for i := 0; i < thinkingQueueCap+10; i++ {
			r.Push("a1", ThinkingChunk{Content: fmt.Sprintf("c%d", i)})
		}

		chunks := r.Drain("a1")
		require.Len(t, chunks, thinkingQueueCap)
		assert.Equal(t, "c10", chunks[0].Content)
		assert.Equal(t, fmt.Sprintf("c%d", thinkingQueueCap+9), chunks[len(chunks)-1].Content)
	})

	t.Run("push after remove is discarded", func(t *testing.T) {
		r := NewThinkingRegistry()
		r.Create("a1")
		r.Remove("a1")

		r.Push("a1", ThinkingChunk{Content: "late"})

		assert.False(t, r.Exists("a1"))
		assert.Nil(t, r.Drain("a1"))
	})

	t.Run("queues are independent", func(t *testing.T) {
		r := NewThinkingRegistry()
		r.Create("a1")
		r.Create("a2")

		r.Push("a1", ThinkingChunk{Content: "vienas"})
		r.Push("a2", ThinkingChunk{Content: "kitas"})

		require.Len(t, r.Drain("a1"), 1)
		require.Len(t, r.Drain("a2"), 1)
	})
}
