//go:build cgo

package resolver

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/elm"
)

// ParserName identifies the import parser compiled into this build.
const ParserName = "tree-sitter"

// parseImports returns the module names imported by an Elm source file.
// Only the module header and import clauses must be well formed; errors
// further down the file are left to the compiler.
func parseImports(ctx context.Context, source []byte) ([]string, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(elm.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var modules []string

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)

		switch node.Type() {
		case "module_declaration":
			if node.HasError() {
				return nil, declarationError("module declaration", node, source)
			}
		case "import_clause":
			if node.HasError() {
				return nil, declarationError("import", node, source)
			}
			name := node.ChildByFieldName("moduleName")
			if name == nil {
				name = firstNamedChild(node, "upper_case_qid")
			}
			if name == nil {
				return nil, declarationError("import", node, source)
			}
			modules = append(modules, name.Content(source))
		case "ERROR":
			text := strings.TrimSpace(node.Content(source))
			if isHeaderText(text) {
				return nil, declarationError("declaration", node, source)
			}
		}
	}

	return modules, nil
}

func declarationError(kind string, node *sitter.Node, source []byte) error {
	p := node.StartPoint()
	line := strings.SplitN(node.Content(source), "\n", 2)[0]

	return fmt.Errorf("malformed %s at line %d: %q", kind, p.Row+1, line)
}

func firstNamedChild(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == typ {
			return child
		}
	}

	return nil
}
