package storage

import (
	"errors"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// blobRecord is the persisted row for a single named blob. Grounded on
// dc4eu-vc/pkg/model/sql.go's gorm.Model-embedding idiom for a
// database-backed record.
type blobRecord struct {
	gorm.Model
	Name string `gorm:"uniqueIndex"`
	Data []byte
}

// SQLStore is a gorm/sqlite-backed Store for deployments with a durable
// filesystem, replacing MemoryStore's lost-on-restart semantics.
type SQLStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// OpenSQLStore opens (creating if absent) a sqlite database at path and
// migrates the blob table.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&blobRecord{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Get returns the named blob, if present.
func (s *SQLStore) Get(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec blobRecord
	err := s.db.Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return append([]byte(nil), rec.Data...), true, nil
}

// Put stores data under name, replacing any prior row with that name.
func (s *SQLStore) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec blobRecord
	err := s.db.Where("name = ?", name).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = blobRecord{Name: name, Data: append([]byte(nil), data...)}
		return s.db.Create(&rec).Error
	case err != nil:
		return err
	default:
		rec.Data = append([]byte(nil), data...)
		return s.db.Save(&rec).Error
	}
}

var _ Store = (*SQLStore)(nil)
