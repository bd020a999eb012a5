// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// CollectionRole 表示成员在知识集合中的角色。
type CollectionRole string

const (
	RoleOwner  CollectionRole = "owner"
	RoleEditor CollectionRole = "editor"
	RoleViewer CollectionRole = "viewer"
)

// roleRank 定义角色的权限高低，owner > editor > viewer。
var roleRank = map[CollectionRole]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// AtLeast 判断当前角色的权限是否不低于 min。未知角色视为无权限。
func (r CollectionRole) AtLeast(min CollectionRole) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// Collection 对应于数据库中的 'collections' 表。
// 一个集合是文档的归属单位，检索与问答都以集合为授权边界。
type Collection struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	OwnerID     uint      `gorm:"not null;index" json:"ownerId"`
	IsPublic    bool      `gorm:"not null;default:false" json:"isPublic"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Collection) TableName() string {
	return "collections"
}

// CollectionMember 对应于数据库中的 'collection_members' 表。
// 记录用户在某个集合中的角色，(collection_id, user_id) 唯一。
type CollectionMember struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CollectionID string         `gorm:"type:char(36);not null;uniqueIndex:idx_member_coll_user,priority:1" json:"collectionId"`
	UserID       uint           `gorm:"not null;uniqueIndex:idx_member_coll_user,priority:2" json:"userId"`
	Role         CollectionRole `gorm:"type:varchar(20);not null" json:"role"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (CollectionMember) TableName() string {
	return "collection_members"
}
