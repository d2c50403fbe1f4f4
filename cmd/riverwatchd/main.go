package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "riverwatchd"}
	root.AddCommand(serveCMD(), onceCMD(), migrateCMD())
	_ = root.Execute()
}
