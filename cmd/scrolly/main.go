// Command scrolly serves and inspects markdown scrolly stories.
package main

import (
	"fmt"
	"os"

	"github.com/yantonsoup/d3-playground/cmd/scrolly/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "validate":
		err = commands.ValidateCommand(args)
	case "simulate":
		err = commands.SimulateCommand(args)
	case "version":
		fmt.Printf("scrolly version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("scrolly - scroll-driven stories from markdown")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  scrolly serve [directory]       Start the story server")
	fmt.Println("  scrolly validate [directory]    Validate story files")
	fmt.Println("  scrolly simulate <story.md>     Print the event sequence of a scroll-through")
	fmt.Println("  scrolly version                 Show version")
	fmt.Println("  scrolly help                    Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  scrolly serve                   # Serve ./stories on :8080")
	fmt.Println("  scrolly serve --port 3000       # Custom port")
	fmt.Println("  scrolly serve --no-watch        # Disable hot reload")
	fmt.Println("  scrolly validate stories/       # Check frontmatter and steps")
	fmt.Println("  scrolly simulate stories/ocean.md --down-only")
}
