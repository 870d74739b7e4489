package main

import (
	"github.com/joho/godotenv"

	"bank-success-rates/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
