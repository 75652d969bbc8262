package main

import (
	"os"
	"reflect"
	"strings"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	// Invoked through go:generate from core or storage.
	if strings.HasSuffix(cwd, "core") || strings.HasSuffix(cwd, "storage") {
		if err := os.Chdir(".."); err != nil {
			panic(err)
		}
	}
	generateCore()
	generateStorage()
}

func generateCore() {
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/vellum/core"),
	)
	if err != nil {
		panic(err)
	}

	g.AddDefinedType(reflect.TypeFor[core.EventTag]())

	// Unix nano timestamps
	opts := typeops.WithTimeUnit(typeops.Nano)
	err = g.AddStruct(reflect.TypeFor[core.QueueElement](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts))
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Checkpoint](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts))
	if err != nil {
		panic(err)
	}

	write(g, "./core/records_mus.gen.go")
}

func generateStorage() {
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/vellum/storage"),
	)
	if err != nil {
		panic(err)
	}
	err = g.AddStruct(reflect.TypeFor[storage.ObjectMeta](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}
	write(g, "./storage/records_mus.gen.go")
}

func write(g *musgen.CodeGenerator, path string) {
	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, bs, 0644); err != nil {
		panic(err)
	}
}
