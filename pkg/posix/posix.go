// Package posix implements portable versions of mv, rm and mkdir. They are available as
// subcommands and are used in place of the system tools inside hook scripts.
package posix

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
)

func resolve(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// expand resolves glob patterns on Windows since there's no shell doing it for us
func expand(dir string, args []string, allowEmpty bool) ([]string, error) {
	items := []string{}
	for _, arg := range args {
		arg = resolve(dir, arg)
		if runtime.GOOS != "windows" {
			items = append(items, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}
			return nil, eris.Errorf("pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}
	return items, nil
}

// Move moves the given items into dest. If there's only one item, dest may also be the new name.
func Move(dir string, args []string) error {
	if len(args) < 2 {
		return eris.New("not enough parameters")
	}

	dest := resolve(dir, args[len(args)-1])
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", destParent)
	}

	destIsDir := false
	info, err = os.Stat(dest)
	if err == nil {
		destIsDir = info.IsDir()
	} else if !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
	}

	items, err := expand(dir, args[:len(args)-1], false)
	if err != nil {
		return err
	}

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("can't move multiple items to %s because it is not a directory", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// Remove deletes the given items. Directories require recursive, missing items are ignored with force.
func Remove(dir string, args []string, recursive, force bool) error {
	items, err := expand(dir, args, force)
	if err != nil {
		return err
	}

	existing := items[:0]
	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "could not delete %s", item)
		}
	}

	return nil
}

// Mkdir creates the given directories.
func Mkdir(dir string, args []string, parents bool) error {
	for _, item := range args {
		item = resolve(dir, item)

		var err error
		if parents {
			err = os.MkdirAll(item, 0770)
		} else {
			err = os.Mkdir(item, 0770)
		}

		if err != nil {
			return eris.Wrapf(err, "failed to create %s", item)
		}
	}

	return nil
}

// Run executes a command line such as ["rm", "-rf", "build"]. Handled is false if args[0] isn't one
// of the helpers.
func Run(dir string, args []string) (handled bool, err error) {
	if len(args) == 0 {
		return false, nil
	}

	name := args[0]
	switch name {
	case "mv", "rm", "mkdir":
	default:
		return false, nil
	}

	flags := map[rune]bool{}
	operands := []string{}
	onlyOperands := false
	for _, arg := range args[1:] {
		if !onlyOperands && arg == "--" {
			onlyOperands = true
			continue
		}

		if !onlyOperands && len(arg) > 1 && strings.HasPrefix(arg, "-") {
			for _, flag := range arg[1:] {
				flags[flag] = true
			}
			continue
		}
		operands = append(operands, arg)
	}

	switch name {
	case "mv":
		err = Move(dir, operands)
	case "rm":
		err = Remove(dir, operands, flags['r'] || flags['R'], flags['f'])
	default:
		err = Mkdir(dir, operands, flags['p'])
	}
	return true, err
}
