package project

import "errors"

var (
	// ErrNotFound indicates the project doesn't exist.
	ErrNotFound = errors.New("project not found")
	// ErrFolderNotFound indicates the folder doesn't exist.
	ErrFolderNotFound = errors.New("folder not found")
	// ErrInvalidMove indicates a move that would break the forest shape,
	// such as moving a folder under one of its own descendants.
	ErrInvalidMove = errors.New("invalid move")
	// ErrLocked indicates another owner holds an unexpired project lock.
	ErrLocked = errors.New("project is locked")
	// ErrLockTokenMismatch indicates a lock operation carried the wrong token.
	ErrLockTokenMismatch = errors.New("project lock token mismatch")
)
