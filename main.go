package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"mediarecon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
