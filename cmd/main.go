package main

import (
	"shopify_sync_v1_202608/internal/cli"
)

func main() {
	cli.Execute()
}
