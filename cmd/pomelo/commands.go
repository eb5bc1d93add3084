package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/pomelodrive/pomelo/internal/auth"
	"github.com/pomelodrive/pomelo/internal/drive"
)

func newLoginCmd() *cobra.Command {
	var refreshToken string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store drive credentials",
		Long: "Reads an access token (hidden input) and stores it in the token file.\n" +
			"Pass --refresh-token to enable automatic renewal through the configured token endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Access token: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			accessToken := strings.TrimSpace(string(raw))
			if accessToken == "" {
				return fmt.Errorf("empty token")
			}

			tok := &oauth2.Token{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
			}
			if expiresIn > 0 {
				tok.Expiry = time.Now().Add(expiresIn)
			}

			if err := provider.SetToken(tok); err != nil {
				return err
			}
			fmt.Println("Credentials stored in", cfg.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth2 refresh token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime (0 = derive from the token itself)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cancel in-flight operations, clear session state and forget credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			service.Logout()
			provider.Forget()
			if err := auth.RemoveTokenFile(cfg.TokenFile); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

// resolveFolder maps an id argument to a folder, treating "root" (or no
// argument) as the drive root.
func resolveFolder(cmd *cobra.Command, args []string) (*drive.Item, error) {
	ctx := cmd.Context()
	if len(args) == 0 || args[0] == "root" || args[0] == "/" {
		return service.Root(ctx)
	}
	return service.Folder(ctx, args[0])
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List a folder's children (folders first, then by name)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, err := resolveFolder(cmd, args)
			if err != nil {
				return err
			}

			children, err := service.Children(cmd.Context(), folder.ID)
			if err != nil {
				return err
			}

			if !folder.IsRoot() {
				up := drive.ParentLink{ParentID: folder.Parent.ID}
				fmt.Printf("%-8s %-30s %s\n", "folder", up.Label(), up.ParentID)
			}
			for _, child := range children {
				size := ""
				if child.Kind == drive.KindFile {
					size = formatSize(child.Size)
				}
				fmt.Printf("%-8s %-30s %-36s %s\n", child.Kind, child.Name, child.ID, size)
			}
			return nil
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <item-id>",
		Short: "Show an item's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := service.Item(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Println("ID:      ", it.ID)
			fmt.Println("Name:    ", it.Name)
			fmt.Println("Kind:    ", it.Kind)
			fmt.Println("Path:    ", it.Path())
			fmt.Println("Modified:", it.LastModified.Format(time.RFC3339))
			if it.Kind == drive.KindFolder {
				fmt.Println("Children:", it.ChildCount)
			} else {
				fmt.Println("Size:    ", formatSize(it.Size))
			}
			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent-folder-id> <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := resolveFolder(cmd, args[:1])
			if err != nil {
				return err
			}

			folder, err := service.CreateFolder(cmd.Context(), parent.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Println("Created", folder.Name, folder.ID)
			return nil
		},
	}
}

func newUploadCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <parent-folder-id> <local-file>",
		Short: "Upload a local file in fixed-size chunks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := resolveFolder(cmd, args[:1])
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			if name == "" {
				name = filepath.Base(args[1])
			}

			file, err := service.Upload(cmd.Context(), parent, name, f, info.Size())
			if err != nil {
				return err
			}
			fmt.Println("Uploaded", file.Name, file.ID, formatSize(file.Size))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "remote file name (default: local base name)")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <file-id> <local-path>",
		Short: "Download a file's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := service.Download(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			fmt.Println("Downloaded", formatSize(n), "to", args[1])
			return nil
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <item-id> <new-name>",
		Short: "Rename an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := service.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println("Renamed to", it.Name)
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <item-id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted", args[0])
			return nil
		},
	}
}

// pasteInto loads the clipboard with item-id and pastes into the target
// folder. cp and mv differ only in the loaded operation.
func pasteInto(cmd *cobra.Command, itemID, targetID string, cut bool) error {
	ctx := cmd.Context()

	item, err := service.Item(ctx, itemID)
	if err != nil {
		return err
	}
	target, err := service.Folder(ctx, targetID)
	if err != nil {
		return err
	}

	if cut {
		service.Cut(item)
	} else {
		service.Copy(item)
	}

	pasted, err := service.Paste(ctx, target)
	if err != nil {
		return err
	}
	if pasted == nil {
		fmt.Println("Operation cancelled.")
		return nil
	}
	fmt.Println("Pasted", pasted.Name, "into", target.Name)
	return nil
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <item-id> <target-folder-id>",
		Short: "Copy an item into a folder (awaits the server-side copy)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pasteInto(cmd, args[0], args[1], false)
		},
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <item-id> <target-folder-id>",
		Short: "Move an item into a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pasteInto(cmd, args[0], args[1], true)
		},
	}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
