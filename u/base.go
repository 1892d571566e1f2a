package u

import (
	"fmt"
)

func fmtArgs(def string, args ...any) string {
	if len(args) == 0 {
		return def
	}
	s := fmt.Sprintf("%s", args[0])
	if len(args) > 1 {
		s = fmt.Sprintf(s, args[1:]...)
	}
	return s
}

// PanicIf panics with an optional formatted message if cond is true
func PanicIf(cond bool, args ...any) {
	if cond {
		panic(fmtArgs("condition failed", args...))
	}
}
