package domain

import "errors"

var (
	ErrRoomExists   = errors.New("room id already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotBound     = errors.New("connection not bound")
)
