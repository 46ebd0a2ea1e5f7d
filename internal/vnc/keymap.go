package vnc

import "strings"

// X11 keysym values for the names SendKey payloads reference, ported from
// vnc.rs's key module.
const (
	KeyBackSpace = 0xff08
	KeyTab       = 0xff09
	KeyReturn    = 0xff0d
	KeyEnter     = KeyReturn
	KeyEscape    = 0xff1b
	KeyInsert    = 0xff63
	KeyDelete    = 0xffff
	KeyHome      = 0xff50
	KeyEnd       = 0xff57
	KeyPageUp    = 0xff55
	KeyPageDown  = 0xff56
	KeyLeft      = 0xff51
	KeyUp        = 0xff52
	KeyRight     = 0xff53
	KeyDown      = 0xff54
	KeyF1        = 0xffbe
	KeyF2        = 0xffbf
	KeyF3        = 0xffc0
	KeyF4        = 0xffc1
	KeyF5        = 0xffc2
	KeyF6        = 0xffc3
	KeyF7        = 0xffc4
	KeyF8        = 0xffc5
	KeyF9        = 0xffc6
	KeyF10       = 0xffc7
	KeyF11       = 0xffc8
	KeyF12       = 0xffc9
	KeyShiftL    = 0xffe1
	KeyShiftR    = 0xffe2
	KeyCtrlL     = 0xffe3
	KeyCtrlR     = 0xffe4
	KeyMetaL     = 0xffe7
	KeyMetaR     = 0xffe8
	KeyAltL      = 0xffe9
	KeyAltR      = 0xffea
	KeySuperL    = 0xffeb
	KeySuperR    = 0xffec
)

var keyNames = map[string]uint32{
	"back": KeyBackSpace, "backspace": KeyBackSpace,
	"tab": KeyTab,
	"ret": KeyReturn, "return": KeyReturn, "enter": KeyEnter,
	"esc": KeyEscape, "escape": KeyEscape,
	"ins": KeyInsert, "insert": KeyInsert,
	"del": KeyDelete, "delete": KeyDelete,
	"home": KeyHome, "end": KeyEnd,
	"pageup": KeyPageUp, "pagedown": KeyPageDown,
	"left": KeyLeft, "up": KeyUp, "right": KeyRight, "down": KeyDown,
	"f1": KeyF1, "f2": KeyF2, "f3": KeyF3, "f4": KeyF4, "f5": KeyF5, "f6": KeyF6,
	"f7": KeyF7, "f8": KeyF8, "f9": KeyF9, "f10": KeyF10, "f11": KeyF11, "f12": KeyF12,
	"ctrl": KeyCtrlL, "ctrl_l": KeyCtrlL, "ctrl_r": KeyCtrlR,
	"shift": KeyShiftL, "shift_l": KeyShiftL, "shift_r": KeyShiftR,
	"meta": KeyMetaL, "meta_l": KeyMetaL, "meta_r": KeyMetaR,
	"alt": KeyAltL, "alt_l": KeyAltL, "alt_r": KeyAltR,
	"super": KeySuperL, "super_l": KeySuperL, "super_r": KeySuperR,
}

// KeyFromName resolves one hyphen-split part of a SendKey payload (e.g. the
// "ctrl" in "ctrl-alt-delete") to its X11 keysym. A single printable ASCII
// byte not in the name table is used as that byte's own key code.
func KeyFromName(name string) (uint32, bool) {
	if k, ok := keyNames[strings.ToLower(name)]; ok {
		return k, true
	}
	if len(name) == 1 && name[0] >= 0x20 && name[0] < 0x7f {
		return uint32(name[0]), true
	}
	return 0, false
}

// KeysFromSpec splits a hyphen-joined key specification ("ctrl-alt-delete")
// into keysyms, silently skipping parts that resolve to nothing.
func KeysFromSpec(spec string) []uint32 {
	if spec == "-" {
		return []uint32{'-'}
	}
	parts := strings.Split(spec, "-")
	keys := make([]uint32, 0, len(parts))
	for _, p := range parts {
		if k, ok := KeyFromName(p); ok {
			keys = append(keys, k)
		}
	}
	return keys
}
