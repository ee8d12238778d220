// Command ipnis is a client for ipnisd: it manages keys, stores model blobs
// and issues signed load and call requests.
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
