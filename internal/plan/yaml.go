package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"gopkg.in/yaml.v3"
)

// yamlFile is the top-level schema of a YAML plan file.
type yamlFile struct {
	Variables map[string]any `yaml:"variables"`
	Pages     []yamlPage     `yaml:"pages"`
}

type yamlPage struct {
	Name      string   `yaml:"name"`
	URL       string   `yaml:"url"`
	DependsOn []string `yaml:"depends_on"`
}

// addYAML reads a YAML plan file, declares its variables and queues its
// pages. Page strings are HCL templates, so "${var.base}/about" works the
// same way it does in HCL plans.
func (l *loader) addYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}

	var doc yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}

	for _, name := range slices.Sorted(maps.Keys(doc.Variables)) {
		value, err := toCtyValue(doc.Variables[name])
		if err != nil {
			return fmt.Errorf("%s: variable %q: %w", path, name, err)
		}
		if err := l.declare(name, value, path); err != nil {
			return err
		}
	}

	entries := doc.Pages
	l.decoders = append(l.decoders, func(evalCtx *hcl.EvalContext) ([]Page, error) {
		pages := make([]Page, 0, len(entries))
		for _, entry := range entries {
			url, err := renderTemplate(entry.URL, path, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("page %q in %s: url: %w", entry.Name, path, err)
			}
			deps := make([]string, 0, len(entry.DependsOn))
			for _, raw := range entry.DependsOn {
				dep, err := renderTemplate(raw, path, evalCtx)
				if err != nil {
					return nil, fmt.Errorf("page %q in %s: depends_on: %w", entry.Name, path, err)
				}
				deps = append(deps, dep)
			}
			pages = append(pages, Page{
				Name:      entry.Name,
				URL:       url,
				DependsOn: deps,
				Source:    path,
			})
		}
		return pages, nil
	})
	return nil
}

// renderTemplate evaluates src as an HCL string template.
func renderTemplate(src, filename string, evalCtx *hcl.EvalContext) (string, error) {
	if src == "" {
		return "", nil
	}

	expr, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return "", diags
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}

	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if val.IsNull() || !val.IsKnown() {
		return "", errors.New("template produced no value")
	}
	return val.AsString(), nil
}

// toCtyValue converts a value decoded from YAML into a cty.Value.
func toCtyValue(data any) (cty.Value, error) {
	if data == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	switch v := data.(type) {
	case string:
		return cty.StringVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case uint64:
		return cty.NumberUIntVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(v))
		for key, val := range v {
			ctyVal, err := toCtyValue(val)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[key] = ctyVal
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		elems := make([]cty.Value, 0, len(v))
		for _, val := range v {
			ctyVal, err := toCtyValue(val)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, ctyVal)
		}
		return cty.TupleVal(elems), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported type for conversion to cty.Value: %T", v)
	}
}
