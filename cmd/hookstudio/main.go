// Package main is the entry point for Hook Script Studio.
package main

func main() {
	Execute()
}
