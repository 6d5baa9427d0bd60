package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role repository instance
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) List() ([]models.Role, error) {
	var roles []models.Role
	err := r.db.Order("id ASC").Find(&roles).Error
	return roles, err
}

func (r *roleRepository) GetByName(name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) Assign(userID, roleID uint) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "role_id"},
		},
		DoNothing: true,
	}).Create(&models.UserRole{UserID: userID, RoleID: roleID})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *roleRepository) Remove(userID, roleID uint) (bool, error) {
	tx := r.db.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRole{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *roleRepository) RoleNamesForUser(userID uint) ([]string, error) {
	names := []string{}
	err := r.db.Model(&models.Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Pluck("roles.name", &names).Error
	return names, err
}

type userRoleName struct {
	UserID uint
	Name   string
}

func (r *roleRepository) RoleNamesForUsers(userIDs []uint) (map[uint][]string, error) {
	out := make(map[uint][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []userRoleName
	err := r.db.Table("user_roles").
		Select("user_roles.user_id AS user_id, roles.name AS name").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id IN ?", userIDs).
		Order("roles.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.Name)
	}
	return out, nil
}

func (r *roleRepository) HasRole(userID uint, roleName string) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, roleName).
		Count(&count).Error
	return count > 0, err
}

func (r *roleRepository) AllAssignments() ([]models.UserRole, error) {
	var rows []models.UserRole
	err := r.db.Order("id ASC").Find(&rows).Error
	return rows, err
}
