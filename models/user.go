package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email         string         `gorm:"uniqueIndex;size:120;not null"`
	Username      string         `gorm:"uniqueIndex;size:80;not null"`
	PasswordHash  string         `gorm:"size:255;not null"`
	Conversations []Conversation `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
