package attendance

import "time"

// UnknownProfessor is recorded when the professor entry has no name.
const UnknownProfessor = "Unknown Professor"

// Selection is the course a user picked before scanning. It does not
// change for the lifetime of a session.
type Selection struct {
	CourseID     string
	UserIdentity string // the user's email
}

// Professor is a professor's card registration for one course.
type Professor struct {
	CourseID       string `json:"courseId"`
	ProfessorID    string `json:"professorId"`
	ProfessorName  string `json:"professorName"`
	ProfessorEmail string `json:"professorEmail,omitempty"`
}

// Student is a registered student.
type Student struct {
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
}

// Record is one attendance entry. Records are append-only for the scan
// pipeline.
type Record struct {
	ID            string    `json:"id"`
	CourseID      string    `json:"courseId"`
	StudentEmail  string    `json:"studentEmail"`
	StudentID     string    `json:"studentId"`
	StudentName   string    `json:"studentName"`
	ProfessorID   string    `json:"professorId"`
	ProfessorName string    `json:"professorName"`
	Timestamp     string    `json:"timestamp"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// Filter selects records for listing. Empty fields match everything.
type Filter struct {
	CourseID      string
	StudentEmail  string
	ProfessorName string
	Limit         int
	Offset        int
	Ascending     bool
}
