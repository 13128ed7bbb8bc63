package main

import "github.com/gustavlms/gustav/cmd/gustav/cmd"

func main() {
	cmd.Execute()
}
