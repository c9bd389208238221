package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var folderLimit int

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage conversation folders",
}

var folderAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a folder",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFolderAdd,
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders in creation order",
	RunE:  runFolderList,
}

var folderRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Delete a folder, keeping its conversations",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolderRemove,
}

func init() {
	folderListCmd.Flags().IntVarP(&folderLimit, "limit", "n", 50, "maximum number of folders")
	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderRemoveCmd)
	rootCmd.AddCommand(folderCmd)
}

func runFolderAdd(cmd *cobra.Command, args []string) error {
	folder, err := convos.CreateFolder(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	cmd.Printf("Created folder %s (%s)\n", folder.Name, folder.ID)
	return nil
}

func runFolderList(cmd *cobra.Command, args []string) error {
	folders, err := convos.ListFolders(cmd.Context(), folderLimit)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		cmd.Println("No folders.")
		return nil
	}
	for _, f := range folders {
		cmd.Println(f.ID + "  " + f.Name)
	}
	return nil
}

func runFolderRemove(cmd *cobra.Command, args []string) error {
	if err := convos.DeleteFolder(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Println("Removed.")
	return nil
}
