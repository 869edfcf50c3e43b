package database

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

func init() {
	logger.Init(logger.Config{Level: "error", Format: "text"})
}

// openDB initializes a fresh database under a per-test temp directory and
// tears the singleton down when the test finishes.
func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	ResetForTesting()
	if err := InitWithPath(filepath.Join(t.TempDir(), "reviewpilot.db")); err != nil {
		t.Fatalf("InitWithPath: %v", err)
	}
	t.Cleanup(func() {
		Close()
		ResetForTesting()
	})
	return Get()
}

func TestSQLitePragmas(t *testing.T) {
	db := openDB(t)

	// synchronous=1 is NORMAL, foreign_keys=1 is ON.
	pragmas := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"foreign_keys", "1"},
		{"busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10)},
	}
	for _, p := range pragmas {
		var got string
		require.NoError(t, db.Raw("PRAGMA "+p.name).Scan(&got).Error)
		assert.Equal(t, p.want, got, "PRAGMA %s", p.name)
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	db := openDB(t)

	for _, table := range []string{"reviews", "submissions", "findings", "pull_request_tracks"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s should exist after migration", table)
	}
}

func TestTrackUniqueIndex(t *testing.T) {
	db := openDB(t)

	track := func(pr int) *model.PullRequestTrack {
		return &model.PullRequestTrack{
			Provider:   "github",
			ProjectKey: "acme",
			RepoName:   "widget",
			PRNumber:   pr,
		}
	}

	require.NoError(t, db.Create(track(7)).Error)
	assert.Error(t, db.Create(track(7)).Error, "duplicate (project, repo, PR) should violate the unique index")
	assert.NoError(t, db.Create(track(8)).Error, "a different PR number is a different track")

	var count int64
	require.NoError(t, db.Model(&model.PullRequestTrack{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestTransaction(t *testing.T) {
	openDB(t)

	review := func(id string, pr int) *model.Review {
		return &model.Review{
			ID:         id,
			Kind:       model.ReviewKindInitial,
			Status:     model.ReviewStatusPending,
			Provider:   "github",
			ProjectKey: "acme",
			RepoName:   "widget",
			PRNumber:   pr,
		}
	}
	count := func() int64 {
		var n int64
		require.NoError(t, Get().Model(&model.Review{}).Count(&n).Error)
		return n
	}

	err := Transaction(func(tx *gorm.DB) error {
		return tx.Create(review("rev-tx-1", 1)).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count())

	// An error from the callback must roll the whole transaction back.
	err = Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(review("rev-tx-2", 2)).Error; err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), count(), "rolled back review should not be persisted")
}

func TestHealthCheck(t *testing.T) {
	openDB(t)
	assert.NoError(t, HealthCheck())
}

func TestInitIdempotent(t *testing.T) {
	first := openDB(t)

	// A second init with a different path must not replace the connection
	// or create a new file.
	otherPath := filepath.Join(t.TempDir(), "other.db")
	require.NoError(t, InitWithPath(otherPath))
	assert.Same(t, first, Get())

	_, statErr := os.Stat(otherPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "second init should not create a new database file")
}
