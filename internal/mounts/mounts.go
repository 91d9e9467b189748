// Package mounts provides file mounts used as fs.FS filesystems. A mount is either a
// subdirectory of an embedded filesystem or, when a directory is given, that directory
// on disk. Both are mounted at the same level, so callers open the same paths from
// either.
package mounts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileMount is a mount backed by either an embedded fs.FS or a directory.
type FileMount struct {
	MountName string
	// Dir is the directory backing the mount, or "" when it is embedded.
	Dir string
	fs.FS
}

// String describes a mount as a list of files and directories indented by level.
func (fm FileMount) String() string {
	source := "embedded"
	if fm.Dir != "" {
		source = fm.Dir
	}
	o := fmt.Sprintf("mount %q (%s):\n", fm.MountName, source)
	s, _ := PrintFS(fm.FS)
	return o + s
}

// ErrInvalidPath reports an invalid mount name.
type ErrInvalidPath struct {
	mountName string
}

// Error fulfills the Error interface requirement for ErrInvalidPath.
func (e ErrInvalidPath) Error() string {
	tpl := strings.Join([]string{
		"mount name %q is not a valid fs.ValidPath path",
		"see https://pkg.go.dev/io/fs#ValidPath for more information.",
	}, "\n")
	return fmt.Sprintf(tpl, e.mountName)
}

// NewFileMount mounts the mountName subdirectory of embeddedFS, or dirPath when it is
// not "". Given
//
//	//go:embed sql
//	var sqlFS embed.FS
//
// NewFileMount("sql", sqlFS, "") serves "sql/schema.sql" as "schema.sql", and
// NewFileMount("sql", sqlFS, "/etc/zcrm/sql") serves "/etc/zcrm/sql/schema.sql" under
// the same name.
func NewFileMount(mountName string, embeddedFS fs.FS, dirPath string) (*FileMount, error) {

	if mountName == "" {
		return nil, errors.New("no mount name provided for new file mount")
	}
	if !fs.ValidPath(mountName) {
		return nil, ErrInvalidPath{mountName}
	}

	if dirPath == "" {
		subFS, err := fs.Sub(embeddedFS, mountName)
		if err != nil {
			return nil, fmt.Errorf("could not sub-mount embedded fs at %q: %v", mountName, err)
		}
		return &FileMount{MountName: mountName, FS: subFS}, nil
	}

	s, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("new mount at %q error: %s", dirPath, err)
	}
	if !s.IsDir() {
		return nil, fmt.Errorf("new mount at %q is not a directory", dirPath)
	}
	return &FileMount{MountName: mountName, Dir: dirPath, FS: os.DirFS(dirPath)}, nil
}

// PrintFS makes structured print output from an fs.FS.
func PrintFS(thisFS fs.FS) (string, error) {
	var printOutput strings.Builder
	var topSeen bool
	tpl := "%s[%s] %s%s (%s)\n"

	err := fs.WalkDir(thisFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err // propagate
		}
		if !topSeen { // verbatim root as "[d] ./ (.)"
			fmt.Fprintf(&printOutput, tpl, "", "d", ".", "/", ".")
			topSeen = true
			return nil
		}
		// fs.FS paths are slash separated on all systems.
		indent := strings.Repeat("  ", strings.Count(path, "/"))
		typer, slash := "f", " "
		if d.IsDir() {
			typer, slash = "d", "/"
		}
		fmt.Fprintf(&printOutput, tpl, indent, typer, d.Name(), slash, path)
		return nil
	})
	return printOutput.String(), err
}
