// Command warden runs the code-quality governance loop against a repository.
package main

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
