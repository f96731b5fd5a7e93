package commands

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yantonsoup/d3-playground/internal/config"
	"github.com/yantonsoup/d3-playground/internal/server"
)

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
	dir := "."
	var configPath string
	var port string
	var host string
	noWatch := false
	debug := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--port" || arg == "-p":
			if i+1 < len(args) {
				port = args[i+1]
				i++
			}
		case arg == "--host":
			if i+1 < len(args) {
				host = args[i+1]
				i++
			}
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case arg == "--no-watch":
			noWatch = true
		case arg == "--debug":
			debug = true
		case !strings.HasPrefix(arg, "-"):
			dir = arg
		}
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Printf("Using config: %s\n", configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	// CLI flags override config
	if port != "" {
		portInt, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port: %s", port)
		}
		cfg.Server.Port = portInt
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if noWatch {
		off := false
		cfg.Stories.HotReload = &off
	}
	if debug {
		cfg.Server.Debug = true
	}

	srv := server.New(absDir, cfg)
	if err := srv.Discover(); err != nil {
		return err
	}
	defer srv.Close()

	fmt.Printf("Stories discovered:\n")
	for _, st := range srv.Stories() {
		fmt.Printf("  /story/%-20s %s (%d steps)\n", st.ID, st.Title, len(st.Steps))
	}

	if cfg.IsHotReload() {
		if err := srv.EnableWatch(cfg.Server.Debug); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Printf("\nWatch mode enabled - stories reload on change\n")
	}
	if cfg.Record.Enabled {
		if err := srv.EnableRecording(); err != nil {
			return fmt.Errorf("failed to enable recording: %w", err)
		}
		fmt.Printf("Recording sessions to %s\n", cfg.Record.GetDB())
	}

	fmt.Printf("\nServer running at http://%s\n", cfg.Addr())
	fmt.Printf("Press Ctrl+C to stop\n\n")

	if err := http.ListenAndServe(cfg.Addr(), srv.Handler(context.Background())); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func init() {
	log.SetFlags(0) // Remove timestamp from logs
}
