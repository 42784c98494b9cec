// Package tmpl holds the text/template source for the reconstruction
// program body that scriptpkg splices into the "<reconstruction program
// body>" slot of every emitted self-extracting script.
package tmpl

import (
	_ "embed"
	"strconv"
	"text/template"

	"github.com/sherwoodwang/go-image-reconstructor/shellquote"
)

//go:embed program.sh.tmpl
var programSource string

var funcMap = template.FuncMap{
	"quote": shellquote.Quote,
	"oct":   func(m uint32) string { return strconv.FormatUint(uint64(m), 8) },
}

// Program is the parsed reconstruction program body template.
var Program = template.Must(template.New("program.sh.tmpl").Funcs(funcMap).Parse(programSource))
