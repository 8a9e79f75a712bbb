package main

import (
	"os"

	"github.com/CodeMonkeyCybersecurity/neosec/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
