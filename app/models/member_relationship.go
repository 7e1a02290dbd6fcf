package models

import (
	"time"

	"gorm.io/gorm"
)

// MemberRelationship links two members of the same family/household. Rows are
// written bidirectionally (one row per direction) so family lookups are a
// single indexed query on member_id.
type MemberRelationship struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MemberID        uint      `gorm:"not null;index:ux_member_relationships_pair,unique,priority:1" json:"member_id"`
	RelatedMemberID uint      `gorm:"not null;index:ux_member_relationships_pair,unique,priority:2" json:"related_member_id"`
	Relation        string    `gorm:"type:varchar(50);default:'family'" json:"relation"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FamilySize counts the member plus all distinct related members. A member
// with no relationship rows has a family size of 1.
func FamilySize(db *gorm.DB, memberID uint) (int, error) {
	var related int64
	err := db.Model(&MemberRelationship{}).
		Where("member_id = ?", memberID).
		Distinct("related_member_id").
		Count(&related).Error
	if err != nil {
		return 0, err
	}
	return int(related) + 1, nil
}
