package builtin

import "testing"

func TestFactories(t *testing.T) {
	f := Factories()
	if r, ok := f["redis"]; !ok || !r.Shared || r.Open == nil {
		t.Fatalf("redis factory missing or not shared: %+v", r)
	}
	if l, ok := f["local"]; !ok || l.Shared || l.Open == nil {
		t.Fatalf("local factory missing or shared: %+v", l)
	}
}
