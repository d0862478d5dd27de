package ingest

import "github.com/jsphweid/pianobot/model"

type Kind uint8

const (
	KindEvent Kind = iota
	KindArm
	KindArmPublic
	KindDisarm
	KindToggle
	KindStop
	KindIdleExpired
	KindRearmExpired
	// KindShutdown is the sentinel that ends the worker loop.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindArm:
		return "arm"
	case KindArmPublic:
		return "arm_public"
	case KindDisarm:
		return "disarm"
	case KindToggle:
		return "toggle"
	case KindStop:
		return "stop"
	case KindIdleExpired:
		return "idle_expired"
	case KindRearmExpired:
		return "rearm_expired"
	case KindShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Command is everything the worker can be asked to do. Event is only set for
// KindEvent, Gen only for the timer expiry kinds.
type Command struct {
	Kind  Kind
	Event model.Event
	Gen   uint64
}

var controlKinds = map[string]Kind{
	"arm":        KindArm,
	"arm_public": KindArmPublic,
	"disarm":     KindDisarm,
	"toggle":     KindToggle,
	"stop":       KindStop,
}

// ControlKind maps an operator action name to its command kind.
func ControlKind(name string) (Kind, bool) {
	k, ok := controlKinds[name]
	return k, ok
}
