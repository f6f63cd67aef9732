package session

import "testing"

type fakeHandle struct{ messages []string }

func copyFake(h Handle) Handle {
	src := h.(*fakeHandle)
	out := make([]string, len(src.messages))
	copy(out, src.messages)
	return &fakeHandle{messages: out}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	h := &fakeHandle{messages: []string{"hello"}}
	r.Register("s1", h)

	got, ok := r.Get("s1")
	if !ok || got != Handle(h) {
		t.Fatalf("Get = %v, %v, want registered handle", got, ok)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := New()
	r.Register("parent", &fakeHandle{messages: []string{"a"}})

	if err := r.Clone("parent", "child", copyFake); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	childHandle, _ := r.Get("child")
	childHandle.(*fakeHandle).messages = append(childHandle.(*fakeHandle).messages, "b")

	parentHandle, _ := r.Get("parent")
	if len(parentHandle.(*fakeHandle).messages) != 1 {
		t.Fatalf("parent mutated by clone's append: %v", parentHandle.(*fakeHandle).messages)
	}
}

func TestAppendSharesHandle(t *testing.T) {
	r := New()
	r.Register("parent", &fakeHandle{messages: []string{"a"}})

	shared, err := r.Append("parent", "child")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	shared.(*fakeHandle).messages = append(shared.(*fakeHandle).messages, "b")

	parentHandle, _ := r.Get("parent")
	if len(parentHandle.(*fakeHandle).messages) != 2 {
		t.Fatalf("expected shared mutation visible on parent, got %v", parentHandle.(*fakeHandle).messages)
	}
}

func TestCloneUnknownParentFails(t *testing.T) {
	r := New()
	err := r.Clone("missing", "child", copyFake)
	if err == nil {
		t.Fatal("expected ReuseFailedError")
	}
	if _, ok := err.(*ReuseFailedError); !ok {
		t.Fatalf("expected *ReuseFailedError, got %T", err)
	}
}

func TestAppendUnknownParentFails(t *testing.T) {
	r := New()
	_, err := r.Append("missing", "child")
	if err == nil {
		t.Fatal("expected ReuseFailedError")
	}
}

func TestDrop(t *testing.T) {
	r := New()
	r.Register("s1", &fakeHandle{})
	r.Drop("s1")
	if _, ok := r.Get("s1"); ok {
		t.Fatal("expected handle gone after Drop")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}
