package models

import "time"

type Student struct {
	ID         string              `json:"id" db:"id"`
	Name       string              `json:"name" db:"name"`
	RollNo     string              `json:"roll_no" db:"roll_no"`
	Email      string              `json:"email" db:"email"`
	Department string              `json:"department" db:"department"`
	Year       string              `json:"year" db:"year"`
	Section    string              `json:"section" db:"section"`
	Handles    map[Platform]string `json:"handles" db:"handles"`
	Stats      StatsDocument       `json:"stats" db:"stats"`
	UpdatedAt  time.Time           `json:"updated_at" db:"updated_at"`
}

// StudentFilter selects a roster subset. Empty fields match everything.
type StudentFilter struct {
	Department string   `json:"department,omitempty"`
	Year       string   `json:"year,omitempty"`
	Section    string   `json:"section,omitempty"`
	IDs        []string `json:"ids,omitempty"`
}

// RosterEntry is the minimum a batch needs to schedule and group students.
type RosterEntry struct {
	StudentID  string `json:"student_id"`
	Department string `json:"department"`
	Year       string `json:"year"`
	Section    string `json:"section"`
}

// ClassKey identifies one class group within the roster.
type ClassKey struct {
	Department string `json:"department"`
	Year       string `json:"year"`
	Section    string `json:"section"`
}

func (e RosterEntry) Class() ClassKey {
	return ClassKey{Department: e.Department, Year: e.Year, Section: e.Section}
}
