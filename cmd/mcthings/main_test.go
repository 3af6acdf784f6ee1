package main

import (
	"testing"

	"thingcraft.ai/internal/voxel"
)

func TestParsePos(t *testing.T) {
	cases := []struct {
		in   string
		want voxel.Pos
		ok   bool
	}{
		{"0,0,0", voxel.Pos{}, true},
		{"10, 64, -5", voxel.Pos{10, 64, -5}, true},
		{"1,2", voxel.Pos{}, false},
		{"1,two,3", voxel.Pos{}, false},
	}
	for _, c := range cases {
		got, err := parsePos(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("parsePos(%q) err=%v ok=%v", c.in, err, c.ok)
		}
		if got != c.want {
			t.Fatalf("parsePos(%q)=%v want %v", c.in, got, c.want)
		}
	}
}
