// Package instancedir loads benchmark instance files from a local directory.
package instancedir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"toproute/internal/instance"
	"toproute/internal/model"
)

// Source reads every plain-text instance file under Dir. Files that fail to
// parse are skipped and reported through Warn.
type Source struct {
	Dir  string
	Warn func(path string, err error)
}

func New(dir string) *Source { return &Source{Dir: dir} }

func (s *Source) Name() string { return "instancedir:" + s.Dir }

func (s *Source) Fetch(ctx context.Context) ([]model.Instance, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(e.Name())); ext != ".txt" && ext != ".dat" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []model.Instance
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(s.Dir, name)
		p, err := instance.LoadFile(path)
		if err != nil {
			if s.Warn != nil {
				s.Warn(path, err)
			}
			continue
		}
		customers := make([]model.CustomerIn, 0, p.N())
		for _, c := range p.Customers {
			customers = append(customers, model.CustomerIn{X: c.X, Y: c.Y, Reward: c.Reward})
		}
		out = append(out, model.Instance{
			Name:      p.Name,
			Trucks:    p.Trucks,
			TMax:      p.TMax,
			Customers: customers,
		})
	}
	return out, nil
}
