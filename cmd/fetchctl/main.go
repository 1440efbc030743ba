// Package main provides fetchctl, a command-line client that runs the
// fetch-retry controller directly against one or more URLs.
//
// Usage:
//
//	fetchctl get https://example.com https://example.org
//	fetchctl get --max-retries 5 --base-delay 2s <url>
package main

func main() {
	Execute()
}
