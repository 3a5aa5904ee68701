package model

import "errors"

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrTeacherNotFound   = errors.New("teacher not found")
	ErrStudentNotFound   = errors.New("student not found")
	ErrReferenceNotFound = errors.New("referenced course, room, teacher or group not found")
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidTime       = errors.New("invalid time of day")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidForm       = errors.New("invalid form of teaching")
	ErrJMBAGRequired     = errors.New("jmbag required")
)
