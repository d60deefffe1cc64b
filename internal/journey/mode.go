package journey

import (
	"fmt"
	"strings"
)

// BreakMode controls how the next trip is attached to the journey. The
// integer values are persisted.
type BreakMode int

const (
	Natural        BreakMode = 0
	ForceBreak     BreakMode = -10
	ForceGlue      BreakMode = 10
	ForceGlueLatch BreakMode = 20
)

var modeNames = map[BreakMode]string{
	Natural:        "natural",
	ForceBreak:     "break",
	ForceGlue:      "glue",
	ForceGlueLatch: "glue-latch",
}

func (m BreakMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("BreakMode(%d)", int(m))
}

// ParseBreakMode accepts the names printed by String.
func ParseBreakMode(s string) (BreakMode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return Natural, fmt.Errorf("unknown break mode %q", s)
}
