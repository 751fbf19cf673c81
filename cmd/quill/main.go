package main

import (
	"os"

	"github.com/quillgen/quill/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
