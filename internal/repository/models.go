package repository

import (
	"errors"
	"time"
)

// Role names stored on User and carried by sessions.
const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

// Prediction labels stored on Result.
const (
	LabelPositive = "Positive"
	LabelNegative = "Negative"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email address is already registered")
	// ErrDuplicateUsername is returned when registering a username that already exists.
	ErrDuplicateUsername = errors.New("username is already taken")
)

// User is a registered account.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"column:username;uniqueIndex;size:20;not null"`
	PasswordHash string    `gorm:"column:password_hash;size:60;not null"`
	Name         string    `gorm:"column:name;size:100;not null"`
	Email        string    `gorm:"column:email;uniqueIndex;size:120;not null"`
	DateOfBirth  time.Time `gorm:"column:dob;type:date;not null"`
	Role         string    `gorm:"column:role;size:16;not null;default:patient"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// Result is a persisted prediction for one uploaded image.
type Result struct {
	ID        uint      `gorm:"primaryKey"`
	PatientID uint      `gorm:"column:patient_id;not null;index"`
	Patient   *User     `gorm:"foreignKey:PatientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	ImagePath string    `gorm:"column:image_path;size:255;not null"`
	Label     string    `gorm:"column:result;size:20;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index"`
}

// TableName overrides the default table name.
func (Result) TableName() string {
	return "results"
}

// ResultAggregation summarises stored results.
type ResultAggregation struct {
	TotalCount    int64
	PositiveCount int64
}
