package mealchat

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}

// Dump prints v to stderr prefixed with the caller's file and line.
func Dump(v ...any) {
	_, file, line, _ := runtime.Caller(1)
	Fdump(os.Stderr, fmt.Sprintf("%s:%d:", file, line), v...)
}

// Fdump writes a labelled deep dump of v to w. The CLI uses it for -debug output.
func Fdump(w io.Writer, label string, v ...any) {
	fmt.Fprintln(w, label)
	dumpConfig.Fdump(w, v...)
}
