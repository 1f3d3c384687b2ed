package main

import (
	"fmt"
	"os"

	"github.com/frozenspider/chat-history-manager-go/tools/devdata/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
