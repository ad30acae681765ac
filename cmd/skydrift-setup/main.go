package main

import "github.com/skydriftlabs/skydrift-setup/cmd/skydrift-setup/cmd"

func main() {
	cmd.Execute()
}
