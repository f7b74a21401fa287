// Package store persists chat messages and the room directory in SQLite
// through GORM. It is the durable side of the relay: the dispatcher only
// broadcasts a chat message after Append has committed it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrRoomExists is returned by CreateRoom for a duplicate name.
var ErrRoomExists = errors.New("room already exists")

// Store provides access to message and room storage.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and runs
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Room{}, &Message{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already opened and migrated gorm.DB.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append persists a message and returns it with its assigned id and
// timestamp. The room directory entry and the message row are written in
// one transaction so a failure leaves nothing behind.
func (s *Store) Append(ctx context.Context, room, username, content string) (*Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		Room:      room,
		Username:  username,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(Room{Name: room}).
			Attrs(Room{CreatedAt: msg.CreatedAt}).
			FirstOrCreate(&Room{}).Error; err != nil {
			return err
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append message to %s: %w", room, err)
	}
	return msg, nil
}

// Recent returns up to limit messages for a room, ordered newest to
// oldest. Callers wanting chronological display must reverse the slice.
func (s *Store) Recent(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		// rowid breaks timestamp ties in insertion order.
		Order("created_at DESC, rowid DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("load recent messages for %s: %w", room, err)
	}
	return messages, nil
}

// Rooms lists the room directory, oldest first.
func (s *Store) Rooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// CreateRoom adds a room to the directory.
func (s *Store) CreateRoom(ctx context.Context, name string) (*Room, error) {
	room := &Room{Name: name, CreatedAt: time.Now().UTC()}
	result := s.db.WithContext(ctx).
		Where(Room{Name: name}).
		FirstOrCreate(room)
	if result.Error != nil {
		return nil, fmt.Errorf("create room %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRoomExists
	}
	return room, nil
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.WithContext(ctx).DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}
