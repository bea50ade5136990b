package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/data-assistant/internal/session"
)

func init() {
	datasetsCmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ds"},
		Short:   "List datasets from every user",
		Args:    cobra.NoArgs,
		Run:     runDatasets,
	}
	datasetsCmd.Flags().Bool("sync", false, "Register files in the backend's uploads folder first")
	datasetsCmd.Flags().Bool("cached", false, "Show the locally cached catalog without contacting the backend")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Register files dropped into the backend's uploads folder",
		Args:  cobra.NoArgs,
		Run:   runDatasetsSync,
	}

	folderCmd := &cobra.Command{
		Use:   "folder",
		Short: "List files in the backend's uploads folder",
		Args:  cobra.NoArgs,
		Run:   runDatasetsFolder,
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a CSV or Excel file as a new dataset",
		Long:  "Upload a CSV or Excel file under the active identity. The catalog is refreshed afterwards.",
		Args:  cobra.ExactArgs(1),
		Run:   runDatasetsUpload,
	}
	uploadCmd.Flags().StringP("name", "n", "", "Dataset name (default: derived from the file name)")

	previewCmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Show the first rows of a dataset",
		Args:  cobra.ExactArgs(1),
		Run:   runDatasetsPreview,
	}
	previewCmd.Flags().IntP("limit", "l", 0, "Rows to show (default: preview_limit from config)")
	previewCmd.Flags().String("as", "", "Read as this user (default: the dataset's owner)")

	schemaCmd := &cobra.Command{
		Use:   "schema <id>",
		Short: "Show the columns of a dataset",
		Args:  cobra.ExactArgs(1),
		Run:   runDatasetsSchema,
	}
	schemaCmd.Flags().String("as", "", "Read as this user (default: the dataset's owner)")

	datasetsCmd.AddCommand(syncCmd, folderCmd, uploadCmd, previewCmd, schemaCmd)
	RootCmd.AddCommand(datasetsCmd)
}

func runDatasets(cmd *cobra.Command, args []string) {
	syncFirst, _ := cmd.Flags().GetBool("sync")
	cached, _ := cmd.Flags().GetBool("cached")

	e := openEnv()
	defer e.Close()

	if cached {
		snap, err := e.store.LoadDatasets(cmd.Context())
		if err != nil {
			exitErr("load cached datasets", err)
		}
		if textOutput() {
			fmt.Println(datasetTable(snap, nil))
			return
		}
		printJSON(os.Stdout, snap)
		return
	}

	catalog := session.NewCatalog(e.client, e.store, e.logger)
	snap, err := catalog.Refresh(cmd.Context(), syncFirst)
	if err != nil {
		exitErr("list datasets", err)
	}
	if textOutput() {
		fmt.Println(datasetTable(snap, nil))
		return
	}
	printJSON(os.Stdout, snap)
}

func runDatasetsSync(cmd *cobra.Command, args []string) {
	e := openEnv()
	defer e.Close()

	res, err := session.NewCatalog(e.client, e.store, e.logger).Sync(cmd.Context())
	if err != nil {
		exitErr("sync uploads", err)
	}
	if textOutput() {
		fmt.Printf("synced %d dataset(s)\n", res.Synced)
		for _, a := range res.Added {
			fmt.Printf("  %s  %s  %s\n", a.ID, a.Name, mutedStyle.Render(a.Owner))
		}
		return
	}
	printJSON(os.Stdout, res)
}

func runDatasetsFolder(cmd *cobra.Command, args []string) {
	e := openEnv()
	defer e.Close()

	listing, err := session.NewCatalog(e.client, e.store, e.logger).Folder(cmd.Context())
	if err != nil {
		exitErr("list uploads folder", err)
	}
	if textOutput() {
		t := &table{title: listing.Path, headers: []string{"ID", "NAME", "OWNER", "FILE"}}
		for _, d := range listing.Datasets {
			t.add(d.ID, d.Name, d.Owner, d.OriginalFilename)
		}
		fmt.Println(t.String())
		return
	}
	printJSON(os.Stdout, listing)
}

func runDatasetsUpload(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")

	f, err := os.Open(args[0])
	if err != nil {
		exitErr("open file", err)
	}
	defer f.Close()

	e := openEnv()
	defer e.Close()

	sess := e.newSession("")
	res, err := sess.Upload(cmd.Context(), filepath.Base(args[0]), f, name)
	if err != nil {
		exitErr("upload", err)
	}
	if textOutput() {
		fmt.Printf("uploaded %s as %s (%d rows, owner %s)\n", res.Name, res.ID, res.RowCount, e.identity.Get())
		t := &table{headers: []string{"COLUMN", "TYPE"}}
		for _, c := range res.Columns {
			t.add(c.Name, c.PGType)
		}
		fmt.Println(t.String())
		return
	}
	printJSON(os.Stdout, res)
}

func runDatasetsPreview(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	as, _ := cmd.Flags().GetString("as")
	if limit <= 0 {
		limit = loadConfig().PreviewLimit
	}

	e := openEnv()
	defer e.Close()

	catalog := session.NewCatalog(e.client, e.store, e.logger)
	if err := catalog.Seed(cmd.Context()); err != nil {
		e.logger.Debug("no cached catalog")
	}
	p, err := catalog.Preview(cmd.Context(), args[0], limit, as)
	if err != nil {
		exitErr("preview", err)
	}
	if textOutput() {
		fmt.Println(rowsTable(p.Columns, p.Rows))
		return
	}
	printJSON(os.Stdout, p)
}

func runDatasetsSchema(cmd *cobra.Command, args []string) {
	as, _ := cmd.Flags().GetString("as")

	e := openEnv()
	defer e.Close()

	catalog := session.NewCatalog(e.client, e.store, e.logger)
	if err := catalog.Seed(cmd.Context()); err != nil {
		e.logger.Debug("no cached catalog")
	}
	sc, err := catalog.Schema(cmd.Context(), args[0], as)
	if err != nil {
		exitErr("schema", err)
	}
	if textOutput() {
		t := &table{title: sc.DatasetID, headers: []string{"#", "COLUMN", "TYPE"}}
		for i, c := range sc.Columns {
			pos := c.Position
			if pos == 0 {
				pos = i + 1
			}
			t.add(fmt.Sprint(pos), c.Name, c.PGType)
		}
		fmt.Println(t.String())
		return
	}
	printJSON(os.Stdout, sc)
}
