// Command imagectl lists models, generates images through a running imaged
// server and verifies models in-process.
package main

import (
	"os"

	"imaged/internal/ctl"
)

func main() {
	os.Exit(ctl.MainWithArgs(os.Args[1:]))
}
