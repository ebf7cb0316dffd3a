package validator

import (
	"fmt"
	"reflect"
)

// Validate returns an error naming the component when any dependency is nil
// or the zero value of its type.
func Validate(name string, deps ...any) error {
	var missing []int
	for i, dep := range deps {
		if isMissing(dep) {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required deps for component %s at positions %v", name, missing)
	}

	return nil
}

func isMissing(dep any) bool {
	v := reflect.ValueOf(dep)
	if !v.IsValid() {
		return true
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}
