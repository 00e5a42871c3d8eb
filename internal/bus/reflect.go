package bus

import "reflect"

// funcPointer returns the entry-point address of a func value, used only
// to compare Handler values for identity in UnsubscribeTopic.
func funcPointer(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}
