// Package main is the entry point for the etl binary.
package main

import "os"

func main() {
	os.Exit(execute())
}
