// Package main provides the entry point for the littlebusters CLI.
//
// littlebusters finds pages in comic and manga archives (.cbz/.zip) whose
// resolution is far below the rest of the archive, such as thumbnails or
// scanner leftovers, and removes them.
//
// Usage:
//
//	littlebusters check <archive>...
//	littlebusters check --dry-run <archive>...
//	littlebusters watch <directory>
//
// See --help for all available options.
package main

// main is the entry point for littlebusters.
func main() {
	Execute()
}
