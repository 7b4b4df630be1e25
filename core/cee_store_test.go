package core

import (
	"bytes"
	"testing"
)

func TestScopedMapGetSetDelete(t *testing.T) {
	store := NewStore()
	m := store.AllocOrRecoverMap("widgets")

	if _, ok := m.Get([]byte("a")); ok {
		t.Fatalf("expected missing key to report ok=false")
	}

	m.Set([]byte("a"), []byte("1"))
	v, ok := m.Get([]byte("a"))
	if !ok || !bytes.Equal(v, []byte("1")) {
		t.Fatalf("expected a=1, got %q ok=%v", v, ok)
	}
	if !m.Has([]byte("a")) {
		t.Fatalf("expected Has to report true")
	}

	m.Delete([]byte("a"))
	if m.Has([]byte("a")) {
		t.Fatalf("expected key removed after Delete")
	}
}

func TestScopedMapNamespacesDoNotCollide(t *testing.T) {
	store := NewStore()
	a := store.AllocOrRecoverMap("alpha")
	b := store.AllocOrRecoverMap("beta")

	a.Set([]byte("key"), []byte("alpha-value"))
	b.Set([]byte("key"), []byte("beta-value"))

	av, _ := a.Get([]byte("key"))
	bv, _ := b.Get([]byte("key"))
	if !bytes.Equal(av, []byte("alpha-value")) || !bytes.Equal(bv, []byte("beta-value")) {
		t.Fatalf("expected independent namespaces, got a=%q b=%q", av, bv)
	}
}

func TestScopedMapGetReturnsCopy(t *testing.T) {
	store := NewStore()
	m := store.AllocOrRecoverMap("copies")
	m.Set([]byte("k"), []byte("original"))

	v, _ := m.Get([]byte("k"))
	v[0] = 'X'

	v2, _ := m.Get([]byte("k"))
	if !bytes.Equal(v2, []byte("original")) {
		t.Fatalf("expected Get to return a defensive copy, got %q", v2)
	}
}

func TestScopedMapKeysSortedAscending(t *testing.T) {
	store := NewStore()
	m := store.AllocOrRecoverMap("ordered")
	m.Set([]byte("zebra"), []byte("1"))
	m.Set([]byte("apple"), []byte("2"))
	m.Set([]byte("mango"), []byte("3"))

	keys := m.Keys()
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if string(keys[i-1]) >= string(keys[i]) {
			t.Fatalf("expected ascending order, got %q then %q", keys[i-1], keys[i])
		}
	}
}
