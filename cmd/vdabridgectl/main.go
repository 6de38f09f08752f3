// vdabridgectl -- CLI client for the vdabridge daemon.
package main

import "github.com/dantte-lp/vdabridge/cmd/vdabridgectl/commands"

func main() {
	commands.Execute()
}
