package cli

import (
	"context"
	"errors"
	"fmt"

	"filegate/internal/client"
	"filegate/pkg/api"
)

const (
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

var errNotLoggedIn = errors.New("you are not logged in, run `filegate login` first")

type PushFlags struct {
	Path string
}

// Push uploads files and prints where each one landed.
func Push(ctx context.Context, flags PushFlags, args []string) error {
	token := client.ReadToken()
	if token == "" {
		return errNotLoggedIn
	}
	if flags.Path != "" && len(args) > 1 {
		fmt.Printf("%sOnly the last of %d files will remain at %s%s\n", colorYellow, len(args), flags.Path, colorReset)
	}

	files, err := client.Push(ctx, token, args, flags.Path)
	if err != nil {
		return err
	}
	if len(files) < len(args) {
		fmt.Printf("%s%d of %d files failed to upload%s\n", colorYellow, len(args)-len(files), len(args), colorReset)
	}
	for _, f := range files {
		printFile(f)
	}
	return nil
}

type PullFlags struct {
	Out string
}

// Pull downloads one file.
func Pull(ctx context.Context, flags PullFlags, ref string) error {
	path, err := client.Pull(ctx, ref, flags.Out)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	fmt.Printf("File downloaded: %s\n", path)
	return nil
}

// List prints every file of the logged-in principal.
func List(ctx context.Context) error {
	token := client.ReadToken()
	if token == "" {
		return errNotLoggedIn
	}

	files, err := client.List(ctx, token)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No files.")
	}
	for _, f := range files {
		printFile(f)
	}
	return nil
}

func printFile(f api.FileDto) {
	ref := f.Path
	if f.FileID != "" {
		ref = f.Location + "/" + f.UserID + "/" + f.UploadSessionID + "/" + f.FileID
	}
	fmt.Printf("[%s%s%s] %s (%d bytes", colorYellow, ref, colorReset, f.Filename, f.SizeInBytes)
	if f.CreatedAt != "" {
		fmt.Printf("; created at: %s", f.CreatedAt)
	}
	fmt.Println(")")
}
