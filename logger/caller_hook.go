package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook repoints the caller reported by logrus at the first frame
// outside logrus and this package, so wrapped Info/Warn/Error calls log the
// component's call site rather than the wrapper's.
type callerHook struct{}

// wrapperPrefix marks symbols defined in this package, resolved once so the
// skip list does not depend on the module name. The trailing dot keeps
// sibling packages like logger_test out of the match.
var wrapperPrefix = reflect.TypeOf(callerHook{}).PkgPath() + "."

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// Skip runtime.Callers and this method only. The logrus internals and
	// our wrappers above are filtered by name, so inlining cannot throw a
	// fixed frame count off.
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		fn := frame.Function
		if strings.Contains(fn, "sirupsen/logrus") || strings.HasPrefix(fn, wrapperPrefix) {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}
