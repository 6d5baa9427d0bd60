package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// DefaultRoles are seeded on startup.
var DefaultRoles = []Role{
	{Name: RoleAdmin, Description: "Full access to admin endpoints"},
	{Name: RoleEditor, Description: "Can manage subscribers and content"},
	{Name: RoleViewer, Description: "Read-only access to statistics"},
}

type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"name" validate:"required,min=2,max=50"`
	Description string    `gorm:"type:varchar(255);default:''" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserRole is the many-to-many join between users and roles.
type UserRole struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:ux_user_roles_user_role,unique,priority:1" json:"user_id"`
	RoleID    uint      `gorm:"not null;index:ux_user_roles_user_role,unique,priority:2;index" json:"role_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
