package main

import (
	"os"

	"horse.fit/winnow/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
