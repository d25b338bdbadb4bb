package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// devWSAddr is the local address a running `aqlc dev` pushes build-status
// notifications to over /ws. Editor plugins and the like can connect to
// watch builds without polling stdout.
const devWSAddr = "localhost:7293"

func cmdDev(args []string) {
	fmt.Println("Starting aqlc development watcher...")
	fmt.Println()

	hub := newDevHub()
	go hub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.serveWS)
	go func() {
		if err := http.ListenAndServe(devWSAddr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "dev: websocket server stopped: %v\n", err)
		}
	}()
	fmt.Printf("Pushing build status over ws://%s/ws\n", devWSAddr)

	if doBuild(args, false) {
		fmt.Println("Build successful!")
		hub.push(devMessage{Type: "build", OK: true})
	} else {
		fmt.Println()
		fmt.Println("Fix the errors above and save to retry.")
		hub.push(devMessage{Type: "build", OK: false})
	}
	fmt.Println()

	cwd, err := os.Getwd()
	if err != nil {
		fatal("failed to get working directory: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fatal("failed to create file watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cwd); err != nil {
		fatal("failed to watch directory: %v", err)
	}

	fmt.Println("Watching for changes to *.aql files...")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-sigChan:
			fmt.Println()
			fmt.Println("Shutting down...")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".aql") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				fmt.Printf("File changed: %s\n", filepath.Base(event.Name))
				if doBuild(args, false) {
					fmt.Println("Rebuild successful!")
					hub.push(devMessage{Type: "build", OK: true, File: filepath.Base(event.Name)})
				} else {
					fmt.Println()
					fmt.Println("Fix the errors above and save to retry.")
					hub.push(devMessage{Type: "build", OK: false, File: filepath.Base(event.Name)})
				}
				fmt.Println()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}
