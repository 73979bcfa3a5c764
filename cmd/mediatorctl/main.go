package main

import (
	"fmt"
	"os"

	"mediator/internal/ctl"
)

var BinaryVersion = "undefined"

func main() {
	if err := ctl.Root(BinaryVersion, ctl.NewClient).Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
