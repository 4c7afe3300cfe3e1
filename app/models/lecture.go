package models

import (
	"time"

	"gorm.io/datatypes"
)

// LectureResource is a downloadable attachment of a lecture.
type LectureResource struct {
	Name string `json:"name" validate:"required,max=200"`
	URL  string `json:"url" validate:"required,url"`
	Type string `json:"type" validate:"max=50"`
}

// Lecture is one ordered unit of a course. Position is unique within a course.
type Lecture struct {
	ID          uint                                `gorm:"primaryKey" json:"id"`
	CourseID    uint                                `gorm:"not null;index:ux_lectures_course_position,unique,priority:1" json:"course_id"`
	Title       string                              `gorm:"type:varchar(100);not null" json:"title"`
	Description string                              `gorm:"type:text" json:"description"`
	VideoURL    string                              `gorm:"type:varchar(255);not null" json:"video_url"`
	Thumbnail   string                              `gorm:"type:varchar(255)" json:"thumbnail"`
	Position    int                                 `gorm:"not null;index:ux_lectures_course_position,unique,priority:2" json:"position"`
	Duration    float64                             `gorm:"not null" json:"duration"`
	IsPreview   bool                                `gorm:"default:false" json:"is_preview"`
	Resources   datatypes.JSONSlice[LectureResource] `gorm:"type:json" json:"resources"`
	CreatedAt   time.Time                           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                           `gorm:"autoUpdateTime" json:"updated_at"`
}
