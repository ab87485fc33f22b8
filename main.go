package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/mmn-storage/cmd"
	"github.com/mezonai/mmn-storage/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("STORAGE CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
