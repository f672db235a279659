package main

import (
	"fmt"

	"github.com/fatih/color"
)

func printSignature() {
	cyan := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	white := color.New(color.FgWhite).SprintFunc()

	fmt.Println()
	fmt.Printf("%s : %s\n", cyan("Project    "), white("Galleria"))
	fmt.Printf("%s : %s\n", cyan("Pipeline   "), white("normalize → exif → geocode → thumbnail"))
	fmt.Println()
}
