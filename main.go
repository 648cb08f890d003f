// SPDX-License-Identifier: MPL-2.0

// Command updrift checks GitHub Releases for plugin updates.
package main

import cmd "github.com/updrift/updrift/cmd/updrift"

func main() {
	cmd.Execute()
}
