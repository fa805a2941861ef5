package safe

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/golang/glog"
)

// MustNotNil panics if the given value is nil. Used while wiring components at boot.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts f in a goroutine that recovers and logs panics.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover is meant to be deferred at the top of a goroutine.
func Recover(name string) {
	if r := recover(); r != nil {
		glog.Errorf("[safe] %s panic recovered: %v\n%s", name, r, debug.Stack())
	}
}
