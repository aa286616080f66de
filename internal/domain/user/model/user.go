package model

import (
	baseModel "payflow/pkg/model"

	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	baseModel.BaseModel
	FirstName string         `gorm:"not null" json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone     string         `json:"phone"`
	Address   string         `json:"address,omitempty"`
	Password  string         `gorm:"not null" json:"-"` // 密码不返回给前端
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
