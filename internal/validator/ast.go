package validator

import (
	"context"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
)

// astLanguageFor returns the tree-sitter grammar that matches path's
// extension, or nil when no real parser is wired for that language.
// Typescript/javascript get a real parse; everything else keeps the
// regex fallback in astFallbackPattern.
func astLanguageFor(path string) *sitter.Language {
	switch filepath.Ext(path) {
	case ".ts", ".tsx":
		return typescript.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// astQueryFor returns the tree-sitter query source that finds
// declarations of symbolKind. Queries are written permissively -
// several equivalent declaration shapes per kind - since ast_has only
// needs a yes/no symbol match, not full binding resolution.
func astQueryFor(symbolKind string) string {
	switch symbolKind {
	case "function":
		return `
(function_declaration name: (identifier) @name)
(variable_declarator name: (identifier) @name value: (arrow_function))
(variable_declarator name: (identifier) @name value: (function_expression))
(method_definition name: (property_identifier) @name)
`
	case "class":
		return `(class_declaration name: (identifier) @name)`
	case "interface":
		return `(interface_declaration name: (type_identifier) @name)`
	default:
		return ""
	}
}

// astHasViaTreeSitter parses src with lang and reports whether any
// declaration of symbolKind named name appears in it.
func astHasViaTreeSitter(lang *sitter.Language, src []byte, symbolKind, name string) (bool, error) {
	querySrc := astQueryFor(symbolKind)
	if querySrc == "" {
		return false, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.KindValidationFailure, "parse source for ast_has")
	}
	defer tree.Close()

	query, err := sitter.NewQuery([]byte(querySrc), lang)
	if err != nil {
		// A query node type the grammar doesn't define (e.g.
		// "interface_declaration" against the plain JS grammar) means
		// this declaration kind cannot occur in this language, not
		// that something went wrong.
		return false, nil
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, tree.RootNode())

	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, capture := range match.Captures {
			if capture.Node.Content(src) == name {
				return true, nil
			}
		}
	}
	return false, nil
}
