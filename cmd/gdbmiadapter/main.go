// Command gdbmiadapter is the debug-adapter binary: it bridges a
// front-end's DAP-style byte-stream protocol with one or more GDB
// Machine Interface sessions.
//
// Grounded on the teacher's cmd/cliche entry point: a cobra root command
// with persistent flags bound through viper, delegating each mode
// (serve, console, version) to its own subcommand file.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
