package memstore

import "testing"

func TestSetGetHasDefaultNamespace(t *testing.T) {
	s := New()
	if s.Has("n", "") {
		t.Fatal("expected key absent before Set")
	}
	if err := s.Set("n", 1.0, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !s.Has("n", "") {
		t.Fatal("expected key present after Set")
	}
	if got := s.Get("n", ""); got != 1.0 {
		t.Fatalf("Get = %v, want 1.0", got)
	}
}

func TestIncrement(t *testing.T) {
	s := New()
	ns := "loop"
	for i := 1; i <= 3; i++ {
		got, err := s.Increment("n", 1, ns)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got != float64(i) {
			t.Fatalf("Increment #%d = %v, want %v", i, got, i)
		}
	}
}

func TestAppendBuildsList(t *testing.T) {
	s := New()
	for _, v := range []int{1, 2, 3} {
		if err := s.Append("items", v, "ns"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got := s.Get("items", "ns")
	list, ok := got.([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("items = %v (%T), want 3-element slice", got, got)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s := New()
	_ = s.Set("k", "a", "ns1")
	_ = s.Set("k", "b", "ns2")
	if s.Get("k", "ns1") != "a" || s.Get("k", "ns2") != "b" {
		t.Fatalf("namespaces leaked: ns1=%v ns2=%v", s.Get("k", "ns1"), s.Get("k", "ns2"))
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := New()
	_ = s.Set("a", 1, "ns")
	_ = s.Set("b", 2, "ns")
	if err := s.Delete("a", "ns"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Has("a", "ns") {
		t.Fatal("expected a removed")
	}
	s.Clear("ns")
	if len(s.List("ns")) != 0 {
		t.Fatalf("expected empty namespace after Clear, got %v", s.List("ns"))
	}
}

func TestGetAllAndList(t *testing.T) {
	s := New()
	_ = s.Set("a", 1, "ns")
	_ = s.Set("b", 2, "ns")
	all := s.GetAll("ns")
	if len(all) != 2 {
		t.Fatalf("GetAll = %v, want 2 entries", all)
	}
	keys := s.List("ns")
	if len(keys) != 2 {
		t.Fatalf("List = %v, want 2 keys", keys)
	}
}
