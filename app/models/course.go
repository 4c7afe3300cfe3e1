package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CourseCategory is the closed list of catalogue categories.
type CourseCategory string

const (
	CategoryWebDevelopment    CourseCategory = "Web Development"
	CategoryMobileDevelopment CourseCategory = "Mobile Development"
	CategoryDataScience       CourseCategory = "Data Science"
	CategoryMachineLearning   CourseCategory = "Machine Learning"
	CategoryProgramming       CourseCategory = "Programming"
	CategoryDesign            CourseCategory = "Design"
	CategoryBusiness          CourseCategory = "Business"
	CategoryMarketing         CourseCategory = "Marketing"
	CategoryPhotography       CourseCategory = "Photography"
	CategoryMusic             CourseCategory = "Music"
	CategoryOther             CourseCategory = "Other"
)

// CourseLevel is the closed list of difficulty levels.
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "Beginner"
	LevelIntermediate CourseLevel = "Intermediate"
	LevelAdvanced     CourseLevel = "Advanced"
)

// Course is a sellable unit of lectures. Rating, TotalRatings, EnrolledStudents
// and TotalDuration are derived and only written by the aggregate updater.
type Course struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Title            string          `gorm:"type:varchar(100);not null" json:"title"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	ShortDescription string          `gorm:"type:varchar(200)" json:"short_description"`
	Category         CourseCategory  `gorm:"type:varchar(50);not null;index" json:"category"`
	Level            CourseLevel     `gorm:"type:varchar(20);not null;default:'Beginner'" json:"level"`
	Thumbnail        string          `gorm:"type:varchar(255)" json:"thumbnail"`
	InstructorID     uint            `gorm:"not null;index" json:"instructor_id"`
	Instructor       *User           `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
	Price            decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	IsPublished      bool            `gorm:"default:false;index" json:"is_published"`
	Rating           int             `gorm:"not null;default:0" json:"rating"`
	TotalRatings     int             `gorm:"not null;default:0" json:"total_ratings"`
	EnrolledStudents int             `gorm:"not null;default:0" json:"enrolled_students"`
	TotalDuration    float64         `gorm:"not null;default:0" json:"total_duration"`
	Lectures         []Lecture       `gorm:"foreignKey:CourseID" json:"lectures,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

// AverageRating is the mean of approved review ratings, 0 without reviews.
func (c *Course) AverageRating() float64 {
	if c.TotalRatings == 0 {
		return 0
	}
	return float64(c.Rating) / float64(c.TotalRatings)
}

// MarshalJSON adds average_rating, rounded to one decimal, to the stored fields.
func (c Course) MarshalJSON() ([]byte, error) {
	type course Course
	return json.Marshal(struct {
		course
		AverageRating float64 `json:"average_rating"`
	}{course(c), math.Round(c.AverageRating()*10) / 10})
}

func (c *Course) IsFree() bool {
	return c.Price.IsZero()
}

// IsValidCategory reports whether the category is part of the catalogue.
func IsValidCategory(c CourseCategory) bool {
	switch c {
	case CategoryWebDevelopment, CategoryMobileDevelopment, CategoryDataScience,
		CategoryMachineLearning, CategoryProgramming, CategoryDesign, CategoryBusiness,
		CategoryMarketing, CategoryPhotography, CategoryMusic, CategoryOther:
		return true
	}
	return false
}

func IsValidLevel(l CourseLevel) bool {
	return l == LevelBeginner || l == LevelIntermediate || l == LevelAdvanced
}
