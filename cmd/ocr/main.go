package main

import (
	"os"

	"github.com/deepx-ocr/dxocr/cmd/ocr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
