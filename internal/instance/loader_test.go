package instance

import (
	"strings"
	"testing"
)

const plainInstance = `2 30 3
0 0 0
1 1 10
2 2 20
3 3 30
4 0 0
`

func TestLoadPlainFormat(t *testing.T) {
	p, err := Load("plain", strings.NewReader(plainInstance))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Trucks != 2 || p.TMax != 30 {
		t.Fatalf("header mismatch: trucks=%d tmax=%v", p.Trucks, p.TMax)
	}
	if p.N() != 5 {
		t.Fatalf("expected 5 nodes, got %d", p.N())
	}
	if p.Reward(0) != 0 || p.Reward(p.Sink()) != 0 {
		t.Fatalf("depot/sink must carry zero reward")
	}
	if p.Reward(2) != 20 {
		t.Fatalf("expected reward 20 at node 2, got %v", p.Reward(2))
	}
}

func TestLoadBenchmarkVariant(t *testing.T) {
	in := `n 5
m 2
tmax 30
0 0 0
1 1 10
2 2 20
3 3 30
4 0 0
`
	p, err := Load("bench", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Trucks != 2 || p.TMax != 30 || p.N() != 5 {
		t.Fatalf("got trucks=%d tmax=%v n=%d", p.Trucks, p.TMax, p.N())
	}
}

func TestLoadTabSeparated(t *testing.T) {
	in := "1\t20\t1\n0\t0\t0\n1\t1\t5\n2\t0\t0\n"
	p, err := Load("tabs", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.N() != 3 || p.Reward(1) != 5 {
		t.Fatalf("got n=%d reward=%v", p.N(), p.Reward(1))
	}
}

func TestLoadSkipsBlankLines(t *testing.T) {
	in := "1 20 1\n\n0 0 0\n\n1 1 5\n2 0 0\n\n"
	if _, err := Load("blank", strings.NewReader(in)); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty input"},
		{"badHeader", "nope\n", "header"},
		{"badTrucks", "x 30 1\n0 0 0\n1 1 5\n2 0 0\n", "truck count"},
		{"truncated", "1 30 3\n0 0 0\n1 1 5\n", "coordinate lines"},
		{"shortLine", "1 30 1\n0 0 0\n1 1\n2 0 0\n", "line 2"},
		{"badReward", "1 30 1\n0 0 0\n1 1 abc\n2 0 0\n", "bad reward"},
		{"negReward", "1 30 1\n0 0 0\n1 1 -5\n2 0 0\n", "reward must be"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.name, strings.NewReader(tc.in))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
