package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/tracker"
)

const (
	PhaseSeed     = "seed"
	PhaseEpics    = "epics"
	PhaseLinks    = "links"
	PhaseSubtasks = "subtasks"
)

// Config holds the project namespace and the seed query.
type Config struct {
	Project string
	JQL     string
	Log     utils.Logger
}

// PhaseResult records how many keys a phase walked and how many it added.
type PhaseResult struct {
	Phase   string
	Visited int
	Added   int
}

type Result struct {
	Keys   []string
	Epics  []string
	Phases []PhaseResult
}

type Collector struct {
	client tracker.Client
	cfg    Config
	log    utils.Logger
}

func New(client tracker.Client, cfg Config) *Collector {
	return &Collector{client: client, cfg: cfg, log: utils.OrNop(cfg.Log)}
}

// keySet keeps insertion order so phases walk keys deterministically.
type keySet struct {
	order []string
	seen  map[string]bool
}

func newKeySet() *keySet { return &keySet{seen: make(map[string]bool)} }

func (s *keySet) add(key string) bool {
	if key == "" || s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.order = append(s.order, key)
	return true
}

func (s *keySet) snapshot() []string { return append([]string(nil), s.order...) }

func (s *keySet) sorted() []string {
	out := s.snapshot()
	sort.Strings(out)
	return out
}

// Collect runs the seed query and expands it through epic children,
// same-project cross-links and subtasks, in that order. Each phase walks a
// snapshot of the set taken when it starts. Any failure aborts the run.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	if c.cfg.JQL == "" {
		return nil, errors.New("collecting: empty query")
	}
	set := newKeySet()
	res := &Result{}

	// Seed
	c.log.Infof("Searching issues: %s", c.cfg.JQL)
	items, err := c.client.Search(ctx, c.cfg.JQL)
	if err != nil {
		return nil, phaseErr(PhaseSeed, err)
	}
	seed := PhaseResult{Phase: PhaseSeed, Visited: len(items)}
	for _, it := range items {
		if !set.add(it.Key) {
			continue
		}
		seed.Added++
		if it.IsEpic() {
			res.Epics = append(res.Epics, it.Key)
		}
	}
	res.Phases = append(res.Phases, seed)
	c.log.Infof("Found %d issues (%d epics)", seed.Added, len(res.Epics))

	// Epic children
	epics := PhaseResult{Phase: PhaseEpics}
	if len(res.Epics) > 0 {
		for _, epic := range res.Epics {
			children, err := c.client.EpicChildren(ctx, epic)
			if err != nil {
				return nil, phaseErr(PhaseEpics, fmt.Errorf("%s: %w", epic, err))
			}
			epics.Visited++
			for _, child := range children {
				if set.add(child.Key) {
					epics.Added++
				}
			}
		}
		c.log.Infof("Added %d issues from %d epics", epics.Added, epics.Visited)
	}
	res.Phases = append(res.Phases, epics)

	// Cross-links, same project only.
	links := PhaseResult{Phase: PhaseLinks}
	for _, key := range set.snapshot() {
		linked, err := c.client.Links(ctx, key)
		if err != nil {
			return nil, phaseErr(PhaseLinks, fmt.Errorf("%s: %w", key, err))
		}
		links.Visited++
		for _, l := range linked {
			if !tracker.InNamespace(l, c.cfg.Project) {
				c.log.Debugf("Skipping linked issue %s outside %s", l, c.cfg.Project)
				continue
			}
			if set.add(l) {
				links.Added++
			}
		}
	}
	res.Phases = append(res.Phases, links)
	c.log.Infof("Added %d linked issues", links.Added)

	// Subtasks, any project.
	subs := PhaseResult{Phase: PhaseSubtasks}
	for _, key := range set.snapshot() {
		subtasks, err := c.client.Subtasks(ctx, key)
		if err != nil {
			return nil, phaseErr(PhaseSubtasks, fmt.Errorf("%s: %w", key, err))
		}
		subs.Visited++
		for _, s := range subtasks {
			if set.add(s) {
				subs.Added++
			}
		}
	}
	res.Phases = append(res.Phases, subs)
	c.log.Infof("Added %d subtasks", subs.Added)

	res.Keys = set.sorted()
	c.log.Infof("Collected %d issues", len(res.Keys))
	return res, nil
}

func phaseErr(phase string, err error) error {
	return fmt.Errorf("collecting: phase %s: %w", phase, err)
}
