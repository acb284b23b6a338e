package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// welcomeBanner matches original_source's hello.rs print_welcome_message
// verbatim, down to the leading/trailing blank lines.
const welcomeBanner = `
.______        ______   ___   ___  __
|   _  \      /  __  \  \  \ /  / |  |
|  |_)  |    |  |  |  |  \  V  /  |  |
|      /     |  |  |  |   >   <   |  |
|  |\  \----.|  ` + "`" + `--'  |  /  .  \  |  |
| _| ` + "`" + `._____| \______/  /__/ \__\ |__|
`

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Say hello from Roxi",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(welcomeBanner)
		return nil
	},
}
