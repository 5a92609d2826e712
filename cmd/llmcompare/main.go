package main

import (
	"log"

	"github.com/noah-isme/llmcompare/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
