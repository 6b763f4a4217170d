// Package plan loads crawl plans: declarative descriptions of the pages to
// fetch and the order constraints between them. Plans are written in HCL or
// YAML and may declare variables that page URLs interpolate.
package plan

import (
	"errors"
	"fmt"

	"github.com/vk/gridcrawl/internal/task"
)

// Page is one entry of a plan.
type Page struct {
	// Name identifies the page inside the plan; dependencies refer to it.
	Name string
	// URL is the task key the page registers under. It defaults to Name.
	URL string
	// DependsOn lists page names, or literal task keys for anything that is
	// not a page of this plan.
	DependsOn []string
	// Source is the file the page was declared in.
	Source string
}

// Plan is the merged content of every plan file that was loaded.
type Plan struct {
	Pages []Page
}

// Registrar receives the tasks of a plan. *scheduler.Scheduler satisfies it.
type Registrar interface {
	Add(key task.Key, deps ...task.Key) error
}

// Apply registers every page with r in declaration order. Dependencies that
// name a page resolve to that page's URL; anything else is used as a key
// verbatim and becomes a task of its own.
func (p *Plan) Apply(r Registrar) error {
	urls := make(map[string]string, len(p.Pages))
	for _, page := range p.Pages {
		urls[page.Name] = page.URL
	}

	for _, page := range p.Pages {
		deps := make([]task.Key, 0, len(page.DependsOn))
		for _, dep := range page.DependsOn {
			if url, ok := urls[dep]; ok {
				deps = append(deps, task.Key(url))
			} else {
				deps = append(deps, task.Key(dep))
			}
		}
		if err := r.Add(task.Key(page.URL), deps...); err != nil {
			return fmt.Errorf("page %q: %w", page.Name, err)
		}
	}
	return nil
}

// validate fills defaults and rejects duplicate or empty names and URLs.
func (p *Plan) validate() error {
	var errs []error
	names := make(map[string]string, len(p.Pages))
	urls := make(map[string]string, len(p.Pages))

	for i := range p.Pages {
		page := &p.Pages[i]
		if page.Name == "" {
			errs = append(errs, fmt.Errorf("%s: page with empty name", page.Source))
			continue
		}
		if page.URL == "" {
			page.URL = page.Name
		}
		if prev, ok := names[page.Name]; ok {
			errs = append(errs, fmt.Errorf("%s: page %q already declared in %s", page.Source, page.Name, prev))
			continue
		}
		if prev, ok := urls[page.URL]; ok {
			errs = append(errs, fmt.Errorf("%s: page %q has the same url as page %q", page.Source, page.Name, prev))
			continue
		}
		names[page.Name] = page.Source
		urls[page.URL] = page.Name
	}
	return errors.Join(errs...)
}
