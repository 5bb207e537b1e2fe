// Command debugd is the long-lived daemon process of spec.md §6.2: it owns
// debuggee processes and adapter connections, multiplexing them behind a
// framed JSON-RPC 2.0 protocol over a Unix domain socket.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
