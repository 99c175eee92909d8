// uaspace - address space builder for OPC UA information models.
//
// uaspace imports NodeSet2 files into an in-memory address space,
// enabling browsing, reading, search, and serving the result over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/uaspace/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
