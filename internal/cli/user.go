package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Show the active identity",
		Long:  "Show the identity sent with every backend request. New datasets are uploaded under it.",
		Args:  cobra.NoArgs,
		Run:   runUser,
	}

	setCmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Change the active identity",
		Args:  cobra.ExactArgs(1),
		Run:   runUserSet,
	}

	userCmd.AddCommand(setCmd)
	RootCmd.AddCommand(userCmd)
}

func runUser(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	id := newIdentity(s, nil).Get()
	if textOutput() {
		fmt.Println(id)
		return
	}
	printJSON(os.Stdout, map[string]string{"user_id": id})
}

func runUserSet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	identity := newIdentity(s, nil)
	if err := identity.Set(cmd.Context(), args[0]); err != nil {
		exitErr("set user", err)
	}
	if textOutput() {
		fmt.Println(identity.Get())
		return
	}
	printJSON(os.Stdout, map[string]string{"user_id": identity.Get()})
}
