// main is the entry point of the weightflow CLI.
package main

import (
	"fmt"
	"os"

	"github.com/huangsam/weightflow/cmd"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)
	err := cmd.Execute()

	iocache.CloseStores()
	if perr := cmd.StopProfiling(); perr != nil {
		contract.LogWarn("Failed to stop profiling", perr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
