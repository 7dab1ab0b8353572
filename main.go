package main

import (
	"github.com/tokenvault/tokenvault/cmd"
)

func main() {
	cmd.Execute()
}
