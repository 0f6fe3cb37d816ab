package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrNotInRoom           = errors.New("not in room")
	ErrNotInVoice          = errors.New("not in a voice channel")
	ErrNotOwner            = errors.New("not room owner")
	ErrNotVoiceChannel     = errors.New("not a voice channel")
	ErrInvalidChannelKind  = errors.New("invalid channel kind")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrInconsistentState   = errors.New("inconsistent membership state")

	ErrInvalidUserID   = errors.New("invalid user id")
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)
