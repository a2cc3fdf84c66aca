package input

import (
	"unicode/utf8"
)

// Layout describes a keyboard layout: which shifted characters resolve
// to a base key plus the shift modifier, and which keys act as dead
// keys awaiting a combining character.
type Layout struct {
	Name string

	// shiftedBase maps a shifted character to the unshifted key that
	// produces it, so "!" is sent as the keysym for "1" with shift held
	// rather than as a distinct code.
	shiftedBase map[string]string

	// deadKeys maps a dead key to its combination table.
	deadKeys map[string]map[string]string
}

var usShiftedBase = map[string]string{
	"!": "1", "@": "2", "#": "3", "$": "4", "%": "5",
	"^": "6", "&": "7", "*": "8", "(": "9", ")": "0",
	"_": "-", "+": "=", "{": "[", "}": "]", "|": "\\",
	":": ";", "\"": "'", "<": ",", ">": ".", "?": "/",
	"~": "`",
}

var layouts = map[string]*Layout{
	"us": {
		Name:        "us",
		shiftedBase: usShiftedBase,
	},
	"us-intl": {
		Name:        "us-intl",
		shiftedBase: usShiftedBase,
		deadKeys: map[string]map[string]string{
			"`": {"a": "à", "e": "è", "i": "ì", "o": "ò", "u": "ù"},
			"'": {"a": "á", "e": "é", "i": "í", "o": "ó", "u": "ú", "c": "ç"},
			"^": {"a": "â", "e": "ê", "i": "î", "o": "ô", "u": "û"},
			"~": {"a": "ã", "n": "ñ", "o": "õ"},
			"\"": {"a": "ä", "e": "ë", "i": "ï", "o": "ö", "u": "ü"},
		},
	},
}

// LayoutByName returns the named layout, falling back to us.
func LayoutByName(name string) *Layout {
	if l, ok := layouts[name]; ok {
		return l
	}
	return layouts["us"]
}

// IsDeadKey reports whether key starts a dead-key composition in this
// layout.
func (l *Layout) IsDeadKey(key string) bool {
	_, ok := l.deadKeys[key]
	return ok
}

// ComposeDead combines a buffered dead key with the following key.
// When no combination exists, the dead key resolves to itself followed
// by the second key unchanged.
func (l *Layout) ComposeDead(dead, key string) (string, bool) {
	table, ok := l.deadKeys[dead]
	if !ok {
		return "", false
	}
	composed, ok := table[key]
	return composed, ok
}

// Keysym translates a logical key identity to the remote protocol's
// key-symbol space. For shifted punctuation it resolves to the base
// key's keysym plus a shift requirement rather than a distinct code.
func (l *Layout) Keysym(key string, location KeyLocation) (sym uint32, needShift bool, ok bool) {
	if sym, ok := modifierKeysym(key, location); ok {
		return sym, false, true
	}
	if sym, ok := namedKeysyms[key]; ok {
		return sym, false, true
	}
	if sym, ok := functionKeysym(key); ok {
		return sym, false, true
	}

	// Printable characters only past this point.
	if utf8.RuneCountInString(key) != 1 {
		return 0, false, false
	}

	if base, shifted := l.shiftedBase[key]; shifted {
		r, _ := utf8.DecodeRuneInString(base)
		return keysymForRune(r), true, true
	}

	r, _ := utf8.DecodeRuneInString(key)
	if r >= 'A' && r <= 'Z' {
		return keysymForRune(r), true, true
	}
	return keysymForRune(r), false, true
}
