package main

import (
	"github.com/dicomtk/conquestdb/internal/cli"
)

func main() {
	cli.Execute()
}
