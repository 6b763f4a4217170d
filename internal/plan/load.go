package plan

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

var (
	hclExtensions  = []string{".hcl"}
	yamlExtensions = []string{".yaml", ".yml"}
)

// ErrNoPlanFiles is returned when a directory contains no plan files.
var ErrNoPlanFiles = errors.New("plan: no plan files found")

// pageDecoder turns the pages of one file into Page values once every
// variable is known.
type pageDecoder func(evalCtx *hcl.EvalContext) ([]Page, error)

// loader accumulates variables and deferred page decoders across files.
type loader struct {
	vars       map[string]cty.Value
	varSources map[string]string
	decoders   []pageDecoder
}

// Load reads the plan at path, a single file or a directory searched
// recursively for .hcl, .yaml and .yml files, and merges everything into one
// Plan. overrides replace variable defaults; every override must name a
// declared variable.
//
// Loading runs in two passes: all files are parsed and their variables
// collected first, then pages are evaluated against the complete variable
// set, so a page may use a variable declared in another file.
func Load(ctx context.Context, path string, overrides map[string]string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Plan loader started.", "path", path)

	files, err := fsutil.FindFiles(path, slices.Concat(hclExtensions, yamlExtensions)...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPlanFiles, path)
	}
	logger.Debug("Discovered plan files.", "count", len(files))

	l := &loader{
		vars:       make(map[string]cty.Value),
		varSources: make(map[string]string),
	}
	parser := hclparse.NewParser()
	for _, file := range files {
		switch {
		case fsutil.HasExtension(file, hclExtensions...):
			err = l.addHCL(parser, file)
		case fsutil.HasExtension(file, yamlExtensions...):
			err = l.addYAML(file)
		default:
			err = fmt.Errorf("%s: unsupported plan file, expected .hcl, .yaml or .yml", file)
		}
		if err != nil {
			return nil, err
		}
	}

	evalCtx, err := l.evalContext(overrides)
	if err != nil {
		return nil, err
	}

	p := &Plan{}
	for _, decode := range l.decoders {
		pages, err := decode(evalCtx)
		if err != nil {
			return nil, err
		}
		p.Pages = append(p.Pages, pages...)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	logger.Debug("Plan loading complete.", "files", len(files), "pages", len(p.Pages), "variables", len(l.vars))
	return p, nil
}

// declare records a variable and its default value.
func (l *loader) declare(name string, value cty.Value, source string) error {
	if prev, ok := l.varSources[name]; ok {
		return fmt.Errorf("%s: variable %q already declared in %s", source, name, prev)
	}
	l.varSources[name] = source
	l.vars[name] = value
	return nil
}

// evalContext exposes every variable as var.<name>.
func (l *loader) evalContext(overrides map[string]string) (*hcl.EvalContext, error) {
	values := maps.Clone(l.vars)
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		if _, ok := l.varSources[name]; !ok {
			return nil, fmt.Errorf("variable %q is set but not declared in the plan", name)
		}
		values[name] = cty.StringVal(overrides[name])
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if values[name].IsNull() {
			errs = append(errs, fmt.Errorf("%s: variable %q has no default and no value was provided", l.varSources[name], name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(values),
		},
	}, nil
}
