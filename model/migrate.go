package model

import "gorm.io/gorm"

var allModels = []interface{}{
	&User{},
	&Quest{},
	&UserBadge{},
	&AuditLog{},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
