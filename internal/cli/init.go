package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Provisor project",
	Long:  `Creates a starter manifest and the .provisor working directory.`,
	RunE:  runInitCmd,
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(".provisor", 0755); err != nil {
		return fmt.Errorf("failed to create .provisor directory: %w", err)
	}

	if _, err := os.Stat(defaultEntryPoint); os.IsNotExist(err) {
		content := `// Provisor step manifest
// Platform facts are available via read("prop:facts.family") etc.

name = "my-server"
requireRoot = false

secrets = new Listing<String> {}

endpoints = new Mapping<String, String> {}

steps = new Listing {
  new {
    name = "hello"
    description = "Replace this with your first provisioning step"
    check = new {
      program = "test"
      args = new Listing { "-f"; "/tmp/provisor-hello" }
    }
    action = new {
      program = "touch"
      args = new Listing { "/tmp/provisor-hello" }
    }
  }
}
`
		if err := os.WriteFile(defaultEntryPoint, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", defaultEntryPoint, err)
		}
		fmt.Printf("Created %s\n", defaultEntryPoint)
	}

	fmt.Println("\nProvisor initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit main.pkl to define your provisioning steps")
	fmt.Println("  2. Run 'provisor plan' to preview the step order")
	fmt.Println("  3. Run 'provisor run' to provision the host")

	return nil
}
