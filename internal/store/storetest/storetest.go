// Package storetest 是 store.Store 实现的共享一致性测试。
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MMC/internal/store"
)

// Run 对 newStore 返回的实现执行全部一致性用例；每个用例使用新的实例。
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("find missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Find(ctx, "Akira")
		assert.True(t, errors.Is(err, store.ErrNotFound), "期望 ErrNotFound，实际 %v", err)
	})

	t.Run("insert then find", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, store.Document{
			"_id":         "Akira",
			"title":       "Akira",
			"description": "Neo-Tokyo.",
			"tags":        []string{"Action", "Sci-Fi"},
			"nsfw":        false,
			"visited_mal": true,
		}))

		doc, err := s.Find(ctx, "Akira")
		require.NoError(t, err)
		assert.Equal(t, "Akira", doc["_id"])
		assert.Equal(t, "Neo-Tokyo.", doc["description"])
		assert.Equal(t, false, doc["nsfw"])
		assert.Equal(t, true, doc["visited_mal"])

		r := store.Decode("Akira", doc)
		tags, _ := r.Fields["tags"].List()
		assert.Equal(t, []string{"Action", "Sci-Fi"}, tags)
	})

	t.Run("insert duplicate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, store.Document{"_id": "Akira"}))
		err := s.Insert(ctx, store.Document{"_id": "Akira", "studio": "TMS"})
		assert.True(t, errors.Is(err, store.ErrDuplicate), "期望 ErrDuplicate，实际 %v", err)

		doc, err := s.Find(ctx, "Akira")
		require.NoError(t, err)
		_, ok := doc["studio"]
		assert.False(t, ok, "重复插入不应修改已有文档")
	})

	t.Run("insert without id", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Insert(ctx, store.Document{"title": "x"}))
	})

	t.Run("partial update keeps other keys", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, store.Document{
			"_id":         "Akira",
			"description": "old",
			"rating":      "9",
		}))
		require.NoError(t, s.Update(ctx, "Akira", store.Document{"studio": "TMS"}))

		doc, err := s.Find(ctx, "Akira")
		require.NoError(t, err)
		assert.Equal(t, "old", doc["description"])
		assert.Equal(t, "9", doc["rating"])
		assert.Equal(t, "TMS", doc["studio"])
	})

	t.Run("update missing is not upsert", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, "Akira", store.Document{"studio": "TMS"})
		assert.True(t, errors.Is(err, store.ErrNotFound), "期望 ErrNotFound，实际 %v", err)
		_, err = s.Find(ctx, "Akira")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("keys sorted", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"Cowboy Bebop", "Akira", "Berserk"} {
			require.NoError(t, s.Insert(ctx, store.Document{"_id": k}))
		}
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Akira", "Berserk", "Cowboy Bebop"}, keys)
	})
}
