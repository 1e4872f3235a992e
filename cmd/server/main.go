// Command server is the entry point for the Workroom messaging API.
package main

import (
	"log"

	"workroom/internal/bootstrap"
)

func main() {
	rt, err := bootstrap.New()
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}

	if err := rt.Run(); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
