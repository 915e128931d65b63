package protoreg

import (
	"io"
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Print writes fd as .proto source.
func Print(w io.Writer, fd protoreflect.FileDescriptor) error {
	pp := protoprint.Printer{}
	return pp.PrintProtoFile(fd, w)
}

// Render writes every file of the registry below outDir, at its descriptor path.
func Render(r *Registry, outDir string) error {
	for _, fd := range r.Files() {
		if err := renderFile(fd, outDir); err != nil {
			return err
		}
	}
	return nil
}

func renderFile(fd protoreflect.FileDescriptor, outDir string) error {
	fp := path.Join(outDir, fd.Path())
	if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return Print(f, fd)
}
