package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local database statistics",
		Args:  cobra.NoArgs,
		Run:   runStats,
	}

	ownersCmd := &cobra.Command{
		Use:   "owners",
		Short: "List dataset owners in the cached catalog",
		Args:  cobra.NoArgs,
		Run:   runOwners,
	}

	RootCmd.AddCommand(statsCmd, ownersCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath())
	if err != nil {
		exitErr("stats", err)
	}
	if stats.Identity == "" {
		stats.Identity = newIdentity(s, nil).Get()
	}

	if textOutput() {
		t := &table{title: stats.DBPath, headers: []string{"", ""}}
		t.add("identity", stats.Identity)
		t.add("size", strconv.FormatInt(stats.DBSizeBytes, 10)+" bytes")
		t.add("cached datasets", strconv.Itoa(stats.CachedDatasets))
		t.add("catalog fetched", stats.CatalogAt)
		t.add("messages", strconv.Itoa(stats.TotalMessages))
		t.add("sessions", strconv.Itoa(stats.Sessions))
		fmt.Println(t.String())
		return
	}
	printJSON(os.Stdout, stats)
}

func runOwners(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	owners, err := s.Owners(cmd.Context())
	if err != nil {
		exitErr("list owners", err)
	}

	if textOutput() {
		t := &table{headers: []string{"OWNER", "DATASETS", "ROWS"}}
		for _, o := range owners {
			t.add(o.Owner, strconv.Itoa(o.Datasets), strconv.Itoa(o.Rows))
		}
		fmt.Println(t.String())
		return
	}
	printJSON(os.Stdout, owners)
}
