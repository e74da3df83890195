// Command caskdb is a thin operational front-end over the caskdb façade:
// get/set/rm/gc/buckets/keys against a database directory. It is not part
// of the core's tested surface — it only wires the façade to a terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
