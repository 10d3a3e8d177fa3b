package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) MemoryID() string {
	return g.generate("mem")
}

func (g *Generator) AuditID() string {
	return g.generate("aud")
}

func (g *Generator) BatchID() string {
	return g.generate("rb")
}

func (g *Generator) MessageID() string {
	return g.generate("msg")
}
