package main

import (
	"os"

	"visitor-webhook/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
