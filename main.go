package main

import "github.com/Alturino/makelocal/cmd"

func main() {
	cmd.Start()
}
