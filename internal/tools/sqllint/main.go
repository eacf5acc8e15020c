// Command sqllint verifies that every inline SQL string constant opens with
// a "--sql <uuid>" marker line. The markers tie statements observed in query
// logs back to their source constants.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	markerLinePattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	sqlOpenerPattern  = regexp.MustCompile(`(?i)^(select|insert|update|delete|with|create|alter|drop)\b`)
)

type problem struct {
	file   string
	line   int
	name   string
	reason string
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sqllint [path ...]")
		fmt.Fprintln(os.Stderr, "Checks Go string constants holding SQL for a leading --sql <uuid> marker.")
	}
	flag.Parse()

	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	var problems []problem
	for _, target := range targets {
		found, err := lintTarget(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
		problems = append(problems, found...)
	}

	if len(problems) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "sqllint: SQL constants must open with a --sql <uuid> marker line")
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "  %s:%d: %s: %s\n", p.file, p.line, p.name, p.reason)
	}
	os.Exit(1)
}

func lintTarget(target string) ([]problem, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(target) != ".go" {
			return nil, nil
		}
		return lintFile(target)
	}

	var problems []problem
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		found, err := lintFile(path)
		if err != nil {
			return err
		}
		problems = append(problems, found...)
		return nil
	})
	return problems, err
}

func lintFile(path string) ([]problem, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	var problems []problem
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			text, err := unquote(lit.Value)
			if err != nil {
				continue
			}
			reason := check(text)
			if reason == "" {
				continue
			}
			pos := fset.Position(lit.Pos())
			problems = append(problems, problem{
				file:   path,
				line:   pos.Line,
				name:   declName(spec.Names),
				reason: reason,
			})
		}
		return true
	})
	return problems, nil
}

// check reports why a string constant violates the marker rule, or "" when
// it is either properly marked or not SQL at all.
func check(text string) string {
	head := firstLine(text)
	switch {
	case markerLinePattern.MatchString(head):
		return ""
	case strings.HasPrefix(head, "--sql"):
		return "malformed --sql marker"
	case sqlOpenerPattern.MatchString(stripLeadingComments(text)):
		return "missing --sql marker"
	default:
		return ""
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// stripLeadingComments drops leading "--" comment lines so the SQL opener
// test sees the first real statement keyword.
func stripLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if !strings.HasPrefix(s, "--") {
			return s
		}
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			return ""
		}
		s = s[i:]
	}
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func declName(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
