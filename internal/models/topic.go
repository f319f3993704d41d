package models

import "time"

type Topic struct {
	ID        string    `gorm:"column:id;type:text;primaryKey" json:"id" yaml:"id"`
	Title     string    `gorm:"column:title;type:text" json:"title" yaml:"title"`
	Rubric    string    `gorm:"column:rubric;type:text" json:"rubric" yaml:"rubric"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at" yaml:"-"`
}

func (Topic) TableName() string { return "topics" }
