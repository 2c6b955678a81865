// Command salesplan queries the sales plan table from a terminal: previews,
// key lookups, audits, exports and natural-language questions.
package main

import (
	"fmt"
	"os"
)

func main() {
	root, c := newRootCmd()
	err := root.Execute()
	if cerr := c.close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "cleanup:", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}
