// Package main is the entry point for the guardrail engine.
package main

func main() {
	Execute()
}
