package models

// Category groups tasks. It cannot be deleted while tasks reference it.
type Category struct {
	ID   uint   `gorm:"primarykey" json:"id"`
	Name string `gorm:"size:100;uniqueIndex;not null" json:"name"`
}
