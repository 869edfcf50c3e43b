// Package store is the data access layer. Each aggregate gets its own
// narrow interface so business logic depends on operations, not on GORM.
package store

import "gorm.io/gorm"

// Store bundles the per-aggregate stores behind one access point.
type Store interface {
	Review() ReviewStore
	Submission() SubmissionStore
	Finding() FindingStore
	Track() TrackStore

	// DB returns the underlying database connection for advanced operations.
	// Use sparingly - prefer using specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

// gormStore implements Store on a GORM connection. The same constructor
// serves both the root store and per-transaction stores, so every
// sub-store always shares one *gorm.DB.
type gormStore struct {
	db              *gorm.DB
	reviewStore     ReviewStore
	submissionStore SubmissionStore
	findingStore    FindingStore
	trackStore      TrackStore
}

func newGormStore(db *gorm.DB) *gormStore {
	return &gormStore{
		db:              db,
		reviewStore:     newReviewStore(db),
		submissionStore: newSubmissionStore(db),
		findingStore:    newFindingStore(db),
		trackStore:      newTrackStore(db),
	}
}

// NewStore creates a new Store instance with GORM backend.
func NewStore(db *gorm.DB) Store {
	return newGormStore(db)
}

func (s *gormStore) Review() ReviewStore         { return s.reviewStore }
func (s *gormStore) Submission() SubmissionStore { return s.submissionStore }
func (s *gormStore) Finding() FindingStore       { return s.findingStore }
func (s *gormStore) Track() TrackStore           { return s.trackStore }
func (s *gormStore) DB() *gorm.DB                { return s.db }

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(newGormStore(tx))
	})
}
