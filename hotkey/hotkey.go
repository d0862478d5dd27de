// Package hotkey detects chorded key combinations held on the keyboard and
// dispatches the action bound to them.
//
// Chords are checked on every note-on of a participating key rather than
// only on the last key of the chord, since the order in which a MIDI device
// reports simultaneous key presses is not guaranteed. The first configured
// command whose whole combo is held wins; later commands are not looked at.
//
// Re-striking a key of a chord that is still fully held fires the action
// again. This is intended.
package hotkey

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/util"
	"github.com/pkg/errors"
)

var (
	ErrEmptyCombo    = errors.New("hotkey combo is empty")
	ErrComboRange    = errors.New("hotkey combo key out of range")
	ErrUnknownAction = errors.New("unknown hotkey action")
)

const (
	ActionArm       = "arm"
	ActionArmPublic = "arm_public"
	ActionDisarm    = "disarm"
	ActionToggle    = "toggle"
	ActionStop      = "stop"
)

type KeyState interface {
	IsNoteActive(key uint8) bool
	MarkConsumed(key uint8)
}

// Binding is the configured form of a hotkey: a combo and an action name.
type Binding struct {
	Combo  []uint8 `yaml:"combo"`
	Action string  `yaml:"action"`
}

type Command struct {
	Combo  []uint8
	Name   string
	Action func()
}

type Matcher struct {
	keys     KeyState
	commands []Command
	special  map[uint8]bool
	log      *slog.Logger
}

// CreateComboKey returns a canonical, order independent name for a combo,
// e.g. "102-104-106".
func CreateComboKey(combo []uint8) string {
	notes := normalize(combo)
	var res string
	for i, note := range notes {
		res += fmt.Sprintf("%v", note)
		if i < len(notes)-1 {
			res += "-"
		}
	}
	return res
}

// sorted copy without duplicates
func normalize(combo []uint8) []uint8 {
	seen := make(map[uint8]bool, len(combo))
	for _, k := range combo {
		seen[k] = true
	}
	return util.SortedKeys(seen)
}

// Resolve turns configured bindings into commands using the given action
// table. Bindings keep their configured order.
func Resolve(bindings []Binding, actions map[string]func()) ([]Command, error) {
	var res []Command
	for _, b := range bindings {
		fn, ok := actions[b.Action]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownAction, "%q for combo %v", b.Action, b.Combo)
		}
		res = append(res, Command{Combo: b.Combo, Name: b.Action, Action: fn})
	}
	return res, nil
}

// IsAction reports whether name is one of the known action names.
func IsAction(name string) bool {
	switch name {
	case ActionArm, ActionArmPublic, ActionDisarm, ActionToggle, ActionStop:
		return true
	}
	return false
}

func ValidateCombo(combo []uint8) error {
	if len(combo) == 0 {
		return ErrEmptyCombo
	}
	for _, k := range combo {
		if int(k) >= constants.NumberOfPianoKeys {
			return errors.Wrapf(ErrComboRange, "key %d", k)
		}
	}
	return nil
}

func New(keys KeyState, commands []Command, log *slog.Logger) (*Matcher, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Matcher{
		keys:    keys,
		special: make(map[uint8]bool),
		log:     log,
	}
	for _, c := range commands {
		if err := ValidateCombo(c.Combo); err != nil {
			return nil, errors.Wrapf(err, "hotkey %q", c.Name)
		}
		c.Combo = normalize(c.Combo)
		m.commands = append(m.commands, c)
		for _, k := range c.Combo {
			m.special[k] = true
		}
	}
	return m, nil
}

func (m *Matcher) SpecialKeys() []uint8 {
	keys := util.GetKeys(m.special)
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

// Check is called after key went down. It returns the name of the command
// that fired, if any.
func (m *Matcher) Check(key uint8) (string, bool) {
	if !m.special[key] {
		return "", false
	}
	for _, cmd := range m.commands {
		if !m.allActive(cmd.Combo) {
			continue
		}
		for _, k := range cmd.Combo {
			m.keys.MarkConsumed(k)
		}
		m.log.Info("hotkey: combo completed", "combo", CreateComboKey(cmd.Combo), "action", cmd.Name)
		if cmd.Action != nil {
			cmd.Action()
		}
		return cmd.Name, true
	}
	return "", false
}

func (m *Matcher) allActive(combo []uint8) bool {
	for _, k := range combo {
		if !m.keys.IsNoteActive(k) {
			return false
		}
	}
	return true
}
