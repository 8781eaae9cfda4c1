package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := newApp(os.Stdout, gatewayFromFlags)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
