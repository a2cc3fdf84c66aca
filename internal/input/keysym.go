package input

// X11 keysym values for the function and navigation keys the remote
// framebuffer protocol understands. Printable characters map through
// keysymForRune instead.
const (
	keysymBackSpace uint32 = 0xff08
	keysymTab       uint32 = 0xff09
	keysymReturn    uint32 = 0xff0d
	keysymPause     uint32 = 0xff13
	keysymScrollLk  uint32 = 0xff14
	keysymEscape    uint32 = 0xff1b
	keysymHome      uint32 = 0xff50
	keysymLeft      uint32 = 0xff51
	keysymUp        uint32 = 0xff52
	keysymRight     uint32 = 0xff53
	keysymDown      uint32 = 0xff54
	keysymPageUp    uint32 = 0xff55
	keysymPageDown  uint32 = 0xff56
	keysymEnd       uint32 = 0xff57
	keysymInsert    uint32 = 0xff63
	keysymMenu      uint32 = 0xff67
	keysymNumLock   uint32 = 0xff7f
	keysymF1        uint32 = 0xffbe
	keysymShiftL    uint32 = 0xffe1
	keysymShiftR    uint32 = 0xffe2
	keysymControlL  uint32 = 0xffe3
	keysymControlR  uint32 = 0xffe4
	keysymCapsLock  uint32 = 0xffe5
	keysymAltL      uint32 = 0xffe9
	keysymAltR      uint32 = 0xffea
	keysymSuperL    uint32 = 0xffeb
	keysymSuperR    uint32 = 0xffec
	keysymDelete    uint32 = 0xffff
)

// namedKeysyms maps DOM KeyboardEvent.key names for non-printable keys
// to their keysym. Left/right modifier variants are resolved by
// location before this table is consulted.
var namedKeysyms = map[string]uint32{
	"Backspace":   keysymBackSpace,
	"Tab":         keysymTab,
	"Enter":       keysymReturn,
	"Pause":       keysymPause,
	"ScrollLock":  keysymScrollLk,
	"Escape":      keysymEscape,
	"Home":        keysymHome,
	"ArrowLeft":   keysymLeft,
	"ArrowUp":     keysymUp,
	"ArrowRight":  keysymRight,
	"ArrowDown":   keysymDown,
	"PageUp":      keysymPageUp,
	"PageDown":    keysymPageDown,
	"End":         keysymEnd,
	"Insert":      keysymInsert,
	"ContextMenu": keysymMenu,
	"NumLock":     keysymNumLock,
	"CapsLock":    keysymCapsLock,
	"Delete":      keysymDelete,
}

// modifierKeysyms resolve by key name plus location.
func modifierKeysym(key string, location KeyLocation) (uint32, bool) {
	right := location == LocationRight
	switch key {
	case "Shift":
		if right {
			return keysymShiftR, true
		}
		return keysymShiftL, true
	case "Control":
		if right {
			return keysymControlR, true
		}
		return keysymControlL, true
	case "Alt":
		if right {
			return keysymAltR, true
		}
		return keysymAltL, true
	case "Meta":
		if right {
			return keysymSuperR, true
		}
		return keysymSuperL, true
	}
	return 0, false
}

// functionKeysym resolves F1..F24.
func functionKeysym(key string) (uint32, bool) {
	if len(key) < 2 || key[0] != 'F' {
		return 0, false
	}
	n := 0
	for _, c := range key[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 || n > 24 {
		return 0, false
	}
	return keysymF1 + uint32(n-1), true
}

// keysymForRune maps a printable character to its keysym: Latin-1
// characters are their own keysym, everything else uses the Unicode
// keysym range.
func keysymForRune(r rune) uint32 {
	if r < 0x100 {
		return uint32(r)
	}
	return 0x01000000 + uint32(r)
}
