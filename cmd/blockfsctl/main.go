// Command blockfsctl is a demonstration CLI over the block file system,
// grounded on cmd/pgtokenstore's App/withStore shape: one persistent
// resource opened per invocation, wrapped subcommands, log.Fatal on
// failure.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/weberc2/blockfs/internal/config"
	"github.com/weberc2/blockfs/pkg/device"
	"github.com/weberc2/blockfs/pkg/directory"
	"github.com/weberc2/blockfs/pkg/filesystem"
	"github.com/weberc2/blockfs/pkg/types"
)

var configFileFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a YAML config file (overridden by BLOCKFS_* env vars)",
}

func main() {
	requestID := uuid.NewString()
	log.SetPrefix(fmt.Sprintf("[%s] ", requestID))

	app := cli.App{
		Name:        "blockfsctl",
		Description: "a command line interface to a block file system image",
		Flags:       []cli.Flag{configFileFlag},
		Commands: []*cli.Command{
			{
				Name:        "format",
				Description: "create and format a new disk image",
				Action:      withFS(true, cmdFormat),
			},
			{
				Name:        "mkdir",
				Description: "create a directory",
				Action:      withFS(false, cmdMkdir),
			},
			{
				Name:        "touch",
				Description: "create an empty regular file",
				Action:      withFS(false, cmdTouch),
			},
			{
				Name:        "ls",
				Description: "list a directory's entries",
				Action:      withFS(false, cmdLs),
			},
			{
				Name:        "cat",
				Description: "print a regular file's contents to stdout",
				Action:      withFS(false, cmdCat),
			},
			{
				Name:        "write",
				Description: "write stdin over a regular file from offset 0 (the file is not truncated)",
				Action:      withFS(false, cmdWrite),
			},
			{
				Name:        "rm",
				Aliases:     []string{"remove"},
				Description: "remove a file or empty directory",
				Action:      withFS(false, cmdRemove),
			},
			{
				Name:        "stat",
				Description: "print a path's kind and length",
				Action:      withFS(false, cmdStat),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withFS(
	format bool,
	f func(*filesystem.FileSystem, *cli.Context) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String(configFileFlag.Name))
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		dev, err := device.OpenFileDevice(cfg.ImagePath, types.Sector(cfg.SectorCount))
		if err != nil {
			return fmt.Errorf("opening image `%s`: %w", cfg.ImagePath, err)
		}
		defer dev.Close()

		fs, err := filesystem.Init(dev, format)
		if err != nil {
			return fmt.Errorf("initializing file system: %w", err)
		}

		if err := f(fs, ctx); err != nil {
			fs.Shutdown()
			return err
		}
		return fs.Shutdown()
	}
}

func pathArg(ctx *cli.Context) (string, error) {
	path := ctx.Args().First()
	if path == "" {
		return "", fmt.Errorf("missing required PATH argument")
	}
	return path, nil
}

func cmdFormat(fs *filesystem.FileSystem, ctx *cli.Context) error {
	log.Printf("formatted image with `%d` sectors", fs.Device.SectorCount())
	return nil
}

func cmdMkdir(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	return fs.Mkdir(filesystem.RootCurrentDir{}, path)
}

func cmdTouch(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	return fs.Create(filesystem.RootCurrentDir{}, path)
}

func cmdLs(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	f, err := fs.Open(filesystem.RootCurrentDir{}, path)
	if err != nil {
		return err
	}
	defer fs.Close(f)

	if !fs.IsDir(f) {
		return fmt.Errorf("listing `%s`: %w", path, filesystem.NotADirErr)
	}

	h := directory.NewHandle()
	for {
		name, sector, ok := fs.Readdir(f, h)
		if !ok {
			break
		}
		fmt.Printf("%-14s sector=%d\n", name, sector)
	}
	return nil
}

func cmdCat(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	f, err := fs.Open(filesystem.RootCurrentDir{}, path)
	if err != nil {
		return err
	}
	defer fs.Close(f)

	buf := make([]byte, types.SectorSize)
	for {
		n := fs.Read(f, buf)
		if n == 0 {
			break
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
	}
	return nil
}

func cmdWrite(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	f, err := fs.Open(filesystem.RootCurrentDir{}, path)
	if err != nil {
		return err
	}
	defer fs.Close(f)

	buf := make([]byte, types.SectorSize)
	for {
		n, readErr := os.Stdin.Read(buf)
		if n > 0 {
			if _, err := fs.Write(f, buf[:n]); err != nil {
				return fmt.Errorf("writing `%s`: %w", path, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading from stdin: %w", readErr)
		}
	}
	return nil
}

func cmdRemove(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	return fs.Remove(filesystem.RootCurrentDir{}, path)
}

func cmdStat(fs *filesystem.FileSystem, ctx *cli.Context) error {
	path, err := pathArg(ctx)
	if err != nil {
		return err
	}
	f, err := fs.Open(filesystem.RootCurrentDir{}, path)
	if err != nil {
		return err
	}
	defer fs.Close(f)

	kind := "regular"
	if fs.IsDir(f) {
		kind = "dir"
	}
	fmt.Printf("%s: kind=%s length=%d\n", path, kind, fs.Length(f))
	return nil
}
