// Package buildinfo prints the build metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"io"
)

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// PrintBuildInfo writes version, date and commit to w, one per line.
// Empty values are printed as N/A.
func PrintBuildInfo(w io.Writer, version, date, commit string) {
	fmt.Fprintf(w, "Build version: %s\n", orNA(version))
	fmt.Fprintf(w, "Build date: %s\n", orNA(date))
	fmt.Fprintf(w, "Build commit: %s\n", orNA(commit))
}
