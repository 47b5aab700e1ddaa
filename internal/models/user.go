package models

// User is a student account able to place print orders.
type User struct {
	BaseModel
	Name         string `json:"name"`
	Email        string `gorm:"size:255;uniqueIndex" json:"email"`
	PasswordHash string `json:"-"`
	College      string `json:"college"`
	Department   string `json:"department"`
	Semester     int    `json:"semester"`
}
