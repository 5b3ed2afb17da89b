package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	t.Run("registers pending record", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()

		require.NoError(t, r.Create("t1"))

		rec, ok := r.Get("t1")
		require.True(t, ok)
		assert.Equal(t, StagePending, rec.Stage)
		assert.Equal(t, 100, rec.Total)
		assert.Equal(t, 0, rec.Percent)
		assert.Equal(t, "等待开始...", rec.Message)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()

		require.NoError(t, r.Create("t1"))
		assert.ErrorIs(t, r.Create("t1"), ErrDuplicateTask)
	})

	t.Run("bounded capacity", func(t *testing.T) {
		r := NewRegistry(Config{MaxRecords: 3})
		defer r.Close()

		for i := 0; i < 3; i++ {
			require.NoError(t, r.Create(fmt.Sprintf("t%d", i)))
		}
		assert.ErrorIs(t, r.Create("overflow"), ErrRegistryFull)
		assert.Equal(t, 3, r.Len())
	})
}

func TestUpdate(t *testing.T) {
	t.Run("advances stage and computes percent", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()
		require.NoError(t, r.Create("t1"))

		r.Update("t1", StageInference, 55, 100, "正在识别...")

		rec, ok := r.Get("t1")
		require.True(t, ok)
		assert.Equal(t, StageInference, rec.Stage)
		assert.Equal(t, 55, rec.Percent)
		assert.Equal(t, "正在识别...", rec.Message)
	})

	t.Run("percent truncates", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()
		require.NoError(t, r.Create("t1"))

		r.Update("t1", StageInference, 1, 3, "")
		rec, _ := r.Get("t1")
		assert.Equal(t, 33, rec.Percent)

		r.Update("t1", StageInference, 2, 3, "")
		rec, _ = r.Get("t1")
		assert.Equal(t, 66, rec.Percent)
	})

	t.Run("zero total yields zero percent", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()
		require.NoError(t, r.Create("t1"))

		r.Update("t1", StageUpload, 5, 0, "")
		rec, _ := r.Get("t1")
		assert.Equal(t, 0, rec.Percent)
	})

	t.Run("backward stage ignored", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()
		require.NoError(t, r.Create("t1"))

		r.Update("t1", StageInference, 50, 100, "inferring")
		r.Update("t1", StageUpload, 0, 100, "uploading")

		rec, _ := r.Get("t1")
		assert.Equal(t, StageInference, rec.Stage)
		assert.Equal(t, "inferring", rec.Message)
	})

	t.Run("same stage progress allowed", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()
		require.NoError(t, r.Create("t1"))

		r.Update("t1", StageInference, 20, 100, "")
		r.Update("t1", StageInference, 40, 100, "")

		rec, _ := r.Get("t1")
		assert.Equal(t, 40, rec.Current)
	})

	t.Run("unknown id ignored", func(t *testing.T) {
		r := NewRegistry(DefaultConfig())
		defer r.Close()

		r.Update("ghost", StageComplete, 100, 100, "")
		_, ok := r.Get("ghost")
		assert.False(t, ok)
	})
}

func TestReaper(t *testing.T) {
	t.Run("removes completed records after grace", func(t *testing.T) {
		r := NewRegistry(Config{
			Grace:        20 * time.Millisecond,
			ReapInterval: 10 * time.Millisecond,
		})
		defer r.Close()

		require.NoError(t, r.Create("done"))
		require.NoError(t, r.Create("running"))
		r.Update("done", StageComplete, 100, 100, "识别完成！")
		r.Update("running", StageInference, 50, 100, "")

		assert.Eventually(t, func() bool {
			_, ok := r.Get("done")
			return !ok
		}, time.Second, 5*time.Millisecond)

		_, ok := r.Get("running")
		assert.True(t, ok)
	})

	t.Run("retains completed record within grace", func(t *testing.T) {
		r := NewRegistry(Config{
			Grace:        time.Hour,
			ReapInterval: 5 * time.Millisecond,
		})
		defer r.Close()

		require.NoError(t, r.Create("done"))
		r.Update("done", StageComplete, 100, 100, "")

		time.Sleep(30 * time.Millisecond)
		_, ok := r.Get("done")
		assert.True(t, ok)
	})
}
