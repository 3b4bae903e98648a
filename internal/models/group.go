package models

// ClassSection is a class section owned by the management subsystem
type ClassSection struct {
	ID           string   `json:"id" db:"id"`
	GradeLevelID string   `json:"gradeLevelId" db:"grade_level_id"`
	TeacherIDs   []string `json:"teacherIds"`
}

// Student is a student enrolled in one section, with their parent accounts
type Student struct {
	ID        string   `json:"id" db:"id"`
	SectionID string   `json:"sectionId" db:"section_id"`
	ParentIDs []string `json:"parentIds"`
}
