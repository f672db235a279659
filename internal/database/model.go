package database

import (
	"time"
)

// Tag sources.
const (
	TagSourceManual = 0
	TagSourceAI     = 1
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;size:100;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	DateJoined   time.Time `gorm:"autoCreateTime" json:"date_joined"`
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	CreatedAt time.Time `json:"create_time"`
}

type Tag struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"uniqueIndex;size:30;not null" json:"name"`
	Source int    `gorm:"not null;default:0" json:"source"` // 0 manual, 1 AI
}

// Image is a stored photo with everything the ingestion pipeline derived
// from it. Optional EXIF fields are nil when the file did not carry them.
type Image struct {
	ID uint `gorm:"primaryKey"`

	UserID     uint      `gorm:"index;not null"`
	User       User      `gorm:"constraint:OnDelete:CASCADE;"`
	CategoryID *uint     `gorm:"index"`
	Category   *Category `gorm:"constraint:OnDelete:SET NULL;"`
	Tags       []Tag     `gorm:"many2many:image_tags;constraint:OnDelete:CASCADE;"`

	// Storage keys, not URLs.
	OriginalKey  string `gorm:"not null"`
	ThumbKey     string
	OriginalName string `gorm:"size:255"`
	Description  string

	FileSize int // KB
	Width    int
	Height   int

	CameraModel  *string `gorm:"size:100"`
	ShootTime    *time.Time
	Location     *string `gorm:"size:255"`
	ISO          *int
	FStop        *float64
	ExposureTime *string `gorm:"size:32"`
	Latitude     *float64
	Longitude    *float64

	// No gorm default: a default would swallow an explicit false on insert.
	IsPublic bool `gorm:"not null"`

	UploadTime time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}
