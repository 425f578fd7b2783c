package emitter

import (
	"testing"
)

func TestOnEmitOrder(t *testing.T) {
	e := New()

	var order []int
	e.On("evt", func(args ...any) { order = append(order, 1) })
	e.On("evt", func(args ...any) { order = append(order, 2) })
	e.On("evt", func(args ...any) { order = append(order, 3) })

	if !e.Emit("evt") {
		t.Fatal("Emit should report listeners")
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Expected insertion order [1 2 3], got %v", order)
	}
}

func TestEmitNoListeners(t *testing.T) {
	e := New()
	if e.Emit("nothing") {
		t.Error("Emit with no listeners should return false")
	}
}

func TestEmitArgs(t *testing.T) {
	e := New()

	var got []any
	e.On("evt", func(args ...any) { got = args })
	e.Emit("evt", "a", 42)

	if len(got) != 2 || got[0] != "a" || got[1] != 42 {
		t.Errorf("Expected [a 42], got %v", got)
	}
}

func TestOnce(t *testing.T) {
	e := New()

	count := 0
	e.Once("evt", func(args ...any) { count++ })

	e.Emit("evt")
	e.Emit("evt")

	if count != 1 {
		t.Errorf("Expected once listener to fire 1 time, fired %d", count)
	}
	if e.ListenerCount("evt") != 0 {
		t.Error("Once listener should be removed after firing")
	}
}

func TestOnceRemovedAfterInvocation(t *testing.T) {
	e := New()

	// While the once listener runs it is still subscribed.
	e.Once("evt", func(args ...any) {
		if e.ListenerCount("evt") != 1 {
			t.Error("Once listener should still be subscribed during its invocation")
		}
	})
	e.Emit("evt")
}

func TestOff(t *testing.T) {
	e := New()

	count := 0
	fn := Listener(func(args ...any) { count++ })
	e.On("evt", fn)
	e.On("evt", fn)

	removed := 0
	e.On(RemoveListener, func(args ...any) { removed++ })

	e.Off("evt", fn)
	e.Emit("evt")

	if count != 0 {
		t.Errorf("Removed listener fired %d times", count)
	}
	if removed != 2 {
		t.Errorf("Expected removeListener to fire once per removal (2), got %d", removed)
	}
}

func TestOffAll(t *testing.T) {
	e := New()

	e.On("a", func(args ...any) { t.Error("listener a should be gone") })
	e.On("b", func(args ...any) { t.Error("listener b should be gone") })

	var removedName any = "unset"
	e.On(RemoveListener, func(args ...any) { removedName = args[0] })

	e.OffAll("a")
	if removedName != "a" {
		t.Errorf("Expected removeListener with name a, got %v", removedName)
	}
	e.OffAll("")

	e.Emit("a")
	e.Emit("b")
}

func TestUnsubscribeDuringEmit(t *testing.T) {
	e := New()

	var order []int
	var second Listener

	e.On("evt", func(args ...any) {
		order = append(order, 1)
		e.Off("evt", second)
	})
	second = func(args ...any) { order = append(order, 2) }
	e.On("evt", second)

	// The snapshot in flight still sees the second listener.
	e.Emit("evt")
	if len(order) != 2 {
		t.Errorf("In-flight iteration should be undisturbed, got %v", order)
	}

	order = nil
	e.Emit("evt")
	if len(order) != 1 {
		t.Errorf("Second emission should skip the removed listener, got %v", order)
	}
}

func TestSubscribeDuringEmit(t *testing.T) {
	e := New()

	count := 0
	e.On("evt", func(args ...any) {
		e.Once("evt", func(args ...any) { count++ })
	})

	e.Emit("evt")
	if count != 0 {
		t.Error("Listener added during emit must not run in the same emission")
	}

	e.Emit("evt")
	if count != 1 {
		t.Errorf("Listener added during emit should run on the next emission, count=%d", count)
	}
}
