// Package instance loads Team Orienteering Problem instances from the
// line-oriented text format:
//
//	<num_trucks> <max_time> <num_customers>
//	<x> <y> <reward>        depot
//	...                     num_customers servable customers
//	<x> <y> <reward>        sink
//
// The Chao benchmark header variant ("n <count>" / "m <trucks>" /
// "tmax <time>" on three lines) is accepted as well, since the benchmark
// files are what a solver instance directory usually holds. Rewards on the
// depot and sink lines are ignored.
package instance

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"toproute/internal/top"
)

// Load parses an instance from r. Malformed input produces an error naming
// the offending line; the core never sees a partially built problem.
func Load(name string, r io.Reader) (*top.Problem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("instance %s: %w", name, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("instance %s: empty input", name)
	}

	trucks, tmax, count, body, err := parseHeader(lines)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", name, err)
	}

	want := count + 2 // depot + customers + sink
	if len(body) < want {
		return nil, fmt.Errorf("instance %s: expected %d coordinate lines, got %d", name, want, len(body))
	}
	customers := make([]top.Customer, 0, want)
	for i, line := range body[:want] {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("instance %s: coordinate line %d: want x y reward, got %q", name, i+1, line)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("instance %s: coordinate line %d: bad x: %w", name, i+1, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("instance %s: coordinate line %d: bad y: %w", name, i+1, err)
		}
		reward, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("instance %s: coordinate line %d: bad reward: %w", name, i+1, err)
		}
		if reward < 0 {
			return nil, fmt.Errorf("instance %s: coordinate line %d: reward must be >= 0", name, i+1)
		}
		if i == 0 || i == want-1 {
			reward = 0 // depot and sink carry no reward
		}
		customers = append(customers, top.Customer{ID: i, X: x, Y: y, Reward: reward})
	}
	return top.NewProblem(name, trucks, tmax, customers)
}

// LoadFile loads an instance from a file, naming the problem after the
// file's base name.
func LoadFile(path string) (*top.Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("instance: %w", err)
	}
	defer f.Close()
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	return Load(base, f)
}

func parseHeader(lines []string) (trucks int, tmax float64, count int, body []string, err error) {
	first := strings.Fields(lines[0])

	// Benchmark variant: "n <count>" / "m <trucks>" / "tmax <time>".
	if len(first) == 2 && strings.EqualFold(first[0], "n") {
		if len(lines) < 3 {
			return 0, 0, 0, nil, fmt.Errorf("header: benchmark variant needs 3 header lines")
		}
		total, err := strconv.Atoi(first[1])
		if err != nil {
			return 0, 0, 0, nil, fmt.Errorf("header: bad node count: %w", err)
		}
		m := strings.Fields(lines[1])
		if len(m) != 2 || !strings.EqualFold(m[0], "m") {
			return 0, 0, 0, nil, fmt.Errorf("header: expected \"m <trucks>\", got %q", lines[1])
		}
		trucks, err = strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, 0, nil, fmt.Errorf("header: bad truck count: %w", err)
		}
		tm := strings.Fields(lines[2])
		if len(tm) != 2 || !strings.EqualFold(tm[0], "tmax") {
			return 0, 0, 0, nil, fmt.Errorf("header: expected \"tmax <time>\", got %q", lines[2])
		}
		tmax, err = strconv.ParseFloat(tm[1], 64)
		if err != nil {
			return 0, 0, 0, nil, fmt.Errorf("header: bad tmax: %w", err)
		}
		return trucks, tmax, total - 2, lines[3:], nil
	}

	if len(first) != 3 {
		return 0, 0, 0, nil, fmt.Errorf("header: want \"<trucks> <tmax> <customers>\", got %q", lines[0])
	}
	trucks, err = strconv.Atoi(first[0])
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("header: bad truck count: %w", err)
	}
	tmax, err = strconv.ParseFloat(first[1], 64)
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("header: bad tmax: %w", err)
	}
	count, err = strconv.Atoi(first[2])
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("header: bad customer count: %w", err)
	}
	return trucks, tmax, count, lines[1:], nil
}
