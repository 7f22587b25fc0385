// Package main is the entry point of trexctl, which deploys T-REX suites and
// brings them to an operational state.
package main

func main() {
	Execute()
}
