package store

import "time"

// Message is a persisted chat message. Rows are append-only: nothing in
// this subsystem updates or deletes them after creation.
type Message struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	Room      string    `gorm:"size:100;not null;index" json:"room"`
	Username  string    `gorm:"size:50;not null" json:"username"`
	Content   string    `gorm:"size:500;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"timestamp"`
}

// TableName returns the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// Room is a directory entry. Membership is never persisted; the row only
// records that the name exists.
type Room struct {
	Name      string    `gorm:"primarykey;size:100" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for the Room model.
func (Room) TableName() string {
	return "rooms"
}
