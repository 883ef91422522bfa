package node

import "testing"

func TestIDStable(t *testing.T) {
	a := ID("strategy-core")
	if a == "" {
		t.Fatal("empty id")
	}
	if b := ID("strategy-core"); a != b {
		t.Errorf("id changed between calls: %q != %q", a, b)
	}
}
