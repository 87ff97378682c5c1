package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// goUnits extracts top-level declarations from Go source using go/parser.
// Returns nil when the file does not parse, which sends the caller to the
// line-window fallback.
func goUnits(content string) []unit {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", content, parser.ParseComments)
	if err != nil {
		return nil
	}

	var units []unit
	firstDecl := 0
	for _, decl := range file.Decls {
		start := fset.Position(declStart(fset, decl)).Line
		end := fset.Position(decl.End()).Line
		if firstDecl == 0 {
			firstDecl = start
		}
		units = append(units, unit{symbol: declSymbol(decl), start: start, end: end})
	}

	if len(units) == 0 {
		return nil
	}

	// Package clause and imports preamble ahead of the first declaration.
	if firstDecl > 1 {
		units = append([]unit{{symbol: "<preamble>", start: 1, end: firstDecl - 1}}, units...)
	}
	return units
}

// declStart returns the declaration start including its doc comment so the
// comment lands in the same chunk as the symbol it documents.
func declStart(fset *token.FileSet, decl ast.Decl) token.Pos {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Doc != nil {
			return d.Doc.Pos()
		}
	case *ast.GenDecl:
		if d.Doc != nil {
			return d.Doc.Pos()
		}
	}
	return decl.Pos()
}

func declSymbol(decl ast.Decl) string {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Recv != nil && len(d.Recv.List) > 0 {
			return recvName(d.Recv.List[0].Type) + "." + d.Name.Name
		}
		return d.Name.Name
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				return s.Name.Name
			case *ast.ValueSpec:
				if len(s.Names) > 0 {
					return s.Names[0].Name
				}
			case *ast.ImportSpec:
				return "<imports>"
			}
		}
	}
	return "<decl>"
}

func recvName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return recvName(t.X)
	case *ast.IndexExpr:
		return recvName(t.X)
	case *ast.IndexListExpr:
		return recvName(t.X)
	}
	return "<recv>"
}
