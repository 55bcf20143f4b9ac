// Command surrealctl queries SurrealDB-style RPC endpoints, runs a mock
// endpoint and manages endpoint registrations in etcd.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
