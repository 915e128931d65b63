package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hanpama/protoproject/internal/eventbus"
	"github.com/hanpama/protoproject/internal/events"
	"github.com/hanpama/protoproject/internal/language"
	"github.com/hanpama/protoproject/internal/otel"
	"github.com/hanpama/protoproject/internal/projection"
	"github.com/hanpama/protoproject/internal/protoreg"
	"github.com/hanpama/protoproject/internal/reqid"
	"github.com/hanpama/protoproject/internal/schema"
	"google.golang.org/protobuf/encoding/protojson"
)

const rootUsage = `protoproject: GraphQL selection to protobuf projector tools

USAGE:
  protoproject <command> [flags]

COMMANDS:
  plan             Show the projection tree of every resolver field of an operation
  project          Project a source message through the selection of one field
  compile-proto    Generate the source message .proto file for a schema
  help             Show help for any command
`

const planUsage = `plan FLAGS:
  -schema <file>             GraphQL SDL file. Repeatable; at least one required
  -query <file>              GraphQL document (required)
  -operation <name>          Operation to plan (default: the only operation)
  -vars <json>               Variables as a JSON object
  -proto.package <name>      Source message package (default: protoproject.source)
  -descriptor_set <file>     Bind to a compiled FileDescriptorSet instead of generating messages
  -otel.endpoint <addr>      OTLP collector endpoint
  -otel.service <name>       OpenTelemetry service name (default: protoproject)
  -v                         Log projector compilations
`

const projectUsage = `project FLAGS:
  -schema <file>             GraphQL SDL file. Repeatable; at least one required
  -query <file>              GraphQL document (required)
  -operation <name>          Operation holding the field (default: the only operation)
  -field <path>              Response path of the projected field, e.g. author.books (required)
  -type <name>               Runtime type of the data (default: the field's element type)
  -data <file>               Source message as protobuf JSON; "-" reads stdin (default: -)
  -vars <json>               Variables as a JSON object
  -proto.package <name>      Source message package (default: protoproject.source)
  -descriptor_set <file>     Bind to a compiled FileDescriptorSet instead of generating messages
  -v                         Log projector compilations
`

const compileProtoUsage = `compile-proto FLAGS:
  -schema <file>             GraphQL SDL file. Repeatable; at least one required
  -proto.package <name>      Source message package (default: protoproject.source)
  -out <dir>                 Output directory for the generated .proto file (required)
  -sdl <file>                Also write the schema as annotated SDL
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("protoproject", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "plan":
		return cmdPlan(cmdArgs, os.Stdout)
	case "project":
		return cmdProject(cmdArgs, os.Stdin, os.Stdout)
	case "compile-proto":
		return cmdCompileProto(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "plan":
		fmt.Print(planUsage)
	case "project":
		fmt.Print(projectUsage)
	case "compile-proto":
		fmt.Print(compileProtoUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// engineFlags are shared by the commands that compile projectors.
type engineFlags struct {
	schemaFiles   stringListFlag
	queryFile     string
	operation     string
	vars          string
	protoPackage  string
	descriptorSet string
	verbose       bool
}

func (f *engineFlags) register(fs *flag.FlagSet) {
	fs.Var(&f.schemaFiles, "schema", "GraphQL SDL file")
	fs.StringVar(&f.queryFile, "query", "", "GraphQL document")
	fs.StringVar(&f.operation, "operation", "", "Operation name")
	fs.StringVar(&f.vars, "vars", "", "Variables as a JSON object")
	fs.StringVar(&f.protoPackage, "proto.package", protoreg.DefaultPackage, "Source message package")
	fs.StringVar(&f.descriptorSet, "descriptor_set", "", "Compiled FileDescriptorSet")
	fs.BoolVar(&f.verbose, "v", false, "Log projector compilations")
}

func (f *engineFlags) validate() error {
	if len(f.schemaFiles) == 0 {
		return fmt.Errorf("-schema is required")
	}
	if f.queryFile == "" {
		return fmt.Errorf("-query is required")
	}
	return nil
}

type session struct {
	schema   *schema.Schema
	registry *protoreg.Registry
	engine   *projection.Engine
	doc      *language.QueryDocument
	vars     map[string]any
}

func (f *engineFlags) open() (*session, error) {
	sch, err := loadSchema(f.schemaFiles)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(sch, f.protoPackage, f.descriptorSet)
	if err != nil {
		return nil, err
	}
	engine, err := projection.NewEngine(sch, reg)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	query, err := os.ReadFile(f.queryFile)
	if err != nil {
		return nil, err
	}
	doc, err := language.LoadQuery(sch.Document(), string(query))
	if err != nil {
		return nil, fmt.Errorf("load query: %w", err)
	}
	var vars map[string]any
	if f.vars != "" {
		if err := json.Unmarshal([]byte(f.vars), &vars); err != nil {
			return nil, fmt.Errorf("parse -vars: %w", err)
		}
	}
	if f.verbose {
		logCompilations()
	}
	return &session{schema: sch, registry: reg, engine: engine, doc: doc, vars: vars}, nil
}

func loadSchema(files []string) (*schema.Schema, error) {
	sources := make([]*language.Source, 0, len(files))
	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &language.Source{Name: path, Input: string(b)})
	}
	sch, err := schema.Build(sources...)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}

func loadRegistry(sch *schema.Schema, pkg, descriptorSet string) (*protoreg.Registry, error) {
	if descriptorSet == "" {
		reg, err := protoreg.Build(sch, protoreg.WithPackage(pkg))
		if err != nil {
			return nil, fmt.Errorf("protoreg build: %w", err)
		}
		return reg, nil
	}
	files, err := protoreg.LoadDescriptorSet(descriptorSet)
	if err != nil {
		return nil, fmt.Errorf("load descriptor set: %w", err)
	}
	reg, err := protoreg.Bind(sch, files, pkg)
	if err != nil {
		return nil, fmt.Errorf("protoreg bind: %w", err)
	}
	return reg, nil
}

func logCompilations() {
	eventbus.On(func(_ context.Context, e events.CompileFinish) {
		if e.Err != nil {
			log.Printf("compile %s as %s failed after %s: %v", e.Field, e.RootType, e.Duration, e.Err)
			return
		}
		log.Printf("compiled %s as %s (%d types) in %s", e.Field, e.RootType, e.Types, e.Duration)
	})
	eventbus.On(func(_ context.Context, e events.OperationFinish) {
		log.Printf("planned %d fields of %s %q in %s", e.Fields, e.OperationType, e.OperationName, e.Duration.Round(time.Microsecond))
	})
}

func cmdPlan(args []string, out io.Writer) error {
	var ef engineFlags
	otelEndpoint := ""
	otelService := "protoproject"
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	ef.register(fs)
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, planUsage)
		return err
	}
	if err := ef.validate(); err != nil {
		fmt.Fprint(os.Stderr, planUsage)
		return err
	}

	eventbus.Use(eventbus.New())
	s, err := ef.open()
	if err != nil {
		return err
	}
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, _ := reqid.NewContext(context.Background())
	cache := s.engine.NewCache(ctx, s.vars)
	defer cache.Close(ctx)

	planned, err := s.engine.Plan(ctx, cache, s.doc, ef.operation)
	for _, p := range planned {
		fmt.Fprintf(out, "%s\t%s\t%s\n", p.Path, p.Field, p.Projector.Tree())
	}
	return err
}

func cmdProject(args []string, in io.Reader, out io.Writer) error {
	var ef engineFlags
	fieldPath := ""
	rootType := ""
	dataFile := "-"
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	ef.register(fs)
	fs.StringVar(&fieldPath, "field", fieldPath, "Response path of the projected field")
	fs.StringVar(&rootType, "type", rootType, "Runtime type of the data")
	fs.StringVar(&dataFile, "data", dataFile, "Source message as protobuf JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, projectUsage)
		return err
	}
	if err := ef.validate(); err != nil {
		fmt.Fprint(os.Stderr, projectUsage)
		return err
	}
	if fieldPath == "" {
		fmt.Fprint(os.Stderr, projectUsage)
		return fmt.Errorf("-field is required")
	}

	eventbus.Use(eventbus.New())
	s, err := ef.open()
	if err != nil {
		return err
	}
	op := language.FindOperation(s.doc, ef.operation)
	if op == nil {
		return fmt.Errorf("operation %q not found", ef.operation)
	}
	sel := findSelection(op.SelectionSet, strings.Split(fieldPath, "."))
	if sel == nil {
		return fmt.Errorf("no field at %s", fieldPath)
	}
	if rootType == "" {
		rootType = s.engine.RootType(sel)
	}

	var data []byte
	if dataFile == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(dataFile)
	}
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	src, err := s.registry.NewSource(rootType)
	if err != nil {
		return err
	}
	if err := protojson.Unmarshal(data, src.Interface()); err != nil {
		return fmt.Errorf("parse data as %s: %w", src.Descriptor().FullName(), err)
	}

	ctx := context.Background()
	cache := s.engine.NewCache(ctx, s.vars)
	defer cache.Close(ctx)
	p, err := cache.GetOrCompile(ctx, sel, rootType)
	if err != nil {
		return err
	}
	projected := p.Project(src)
	if projected == nil {
		return fmt.Errorf("data of type %s does not match the selection", src.Descriptor().FullName())
	}
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(projected.Interface())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

// findSelection follows response names from set, looking into fragments.
func findSelection(set language.SelectionSet, path []string) *language.Field {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if sel.Alias != path[0] {
				continue
			}
			if len(path) == 1 {
				return sel
			}
			if f := findSelection(sel.SelectionSet, path[1:]); f != nil {
				return f
			}
		case *language.InlineFragment:
			if f := findSelection(sel.SelectionSet, path); f != nil {
				return f
			}
		case *language.FragmentSpread:
			if sel.Definition == nil {
				continue
			}
			if f := findSelection(sel.Definition.SelectionSet, path); f != nil {
				return f
			}
		}
	}
	return nil
}

func cmdCompileProto(args []string) error {
	var schemaFiles stringListFlag
	protoPackage := protoreg.DefaultPackage
	outDir := ""
	sdlFile := ""
	fs := flag.NewFlagSet("compile-proto", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemaFiles, "schema", "GraphQL SDL file")
	fs.StringVar(&protoPackage, "proto.package", protoPackage, "Source message package")
	fs.StringVar(&outDir, "out", outDir, "Output directory for the generated .proto file")
	fs.StringVar(&sdlFile, "sdl", sdlFile, "Also write the schema as annotated SDL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, compileProtoUsage)
		return err
	}
	if outDir == "" {
		fmt.Fprint(os.Stderr, compileProtoUsage)
		return fmt.Errorf("-out is required")
	}
	if len(schemaFiles) == 0 {
		fmt.Fprint(os.Stderr, compileProtoUsage)
		return fmt.Errorf("-schema is required")
	}
	sch, err := loadSchema(schemaFiles)
	if err != nil {
		return err
	}
	reg, err := protoreg.Build(sch, protoreg.WithPackage(protoPackage))
	if err != nil {
		return fmt.Errorf("protoreg build: %w", err)
	}
	if err := protoreg.Render(reg, outDir); err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	log.Printf("wrote %s", reg.Files()[0].Path())
	if sdlFile != "" {
		if err := os.WriteFile(sdlFile, []byte(schema.Render(sch)), 0o644); err != nil {
			return fmt.Errorf("write sdl: %w", err)
		}
		log.Printf("wrote %s", sdlFile)
	}
	return nil
}
