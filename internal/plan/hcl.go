package plan

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level schema of an HCL plan file.
type hclFile struct {
	Variables []*hclVariable `hcl:"variable,block"`
	Pages     []*hclPage     `hcl:"page,block"`
}

// hclVariable is a `variable "name" { ... }` block.
type hclVariable struct {
	Name        string    `hcl:"name,label"`
	Default     cty.Value `hcl:"default,optional"`
	Description string    `hcl:"description,optional"`
}

// hclPage is a `page "name" { ... }` block. The body is kept raw because it
// can only be evaluated once every variable is known.
type hclPage struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// hclPageBody is the evaluated content of a page block.
type hclPageBody struct {
	URL       string   `hcl:"url,optional"`
	DependsOn []string `hcl:"depends_on,optional"`
}

// addHCL parses an HCL plan file, declares its variables and queues its pages.
func (l *loader) addHCL(parser *hclparse.Parser, path string) error {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	for _, v := range root.Variables {
		if err := l.declare(v.Name, v.Default, path); err != nil {
			return err
		}
	}

	blocks := root.Pages
	l.decoders = append(l.decoders, func(evalCtx *hcl.EvalContext) ([]Page, error) {
		pages := make([]Page, 0, len(blocks))
		for _, block := range blocks {
			var body hclPageBody
			if diags := gohcl.DecodeBody(block.Body, evalCtx, &body); diags.HasErrors() {
				return nil, fmt.Errorf("failed to decode page %q in %s: %w", block.Name, path, diags)
			}
			pages = append(pages, Page{
				Name:      block.Name,
				URL:       body.URL,
				DependsOn: body.DependsOn,
				Source:    path,
			})
		}
		return pages, nil
	})
	return nil
}
