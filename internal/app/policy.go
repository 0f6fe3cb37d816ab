package app

import (
	"fmt"

	"github.com/dkeye/voicehub/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

func (a BackpressureAction) String() string {
	if a == KickMember {
		return "kick"
	}
	return "drop"
}

// Policy decides what happens to a receiver whose send queue is full.
type Policy interface {
	OnBackpressure(target domain.ConnID) BackpressureAction
}

// DropPolicy loses the frame and keeps the receiver.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(domain.ConnID) BackpressureAction { return DropFrame }

// KickPolicy disconnects receivers that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackpressure(domain.ConnID) BackpressureAction { return KickMember }

// PolicyByName maps a config value to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
