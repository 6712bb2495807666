// Package modules wires the built-in module types into a registry.
package modules

import (
	"fmt"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/modules/metronome"
	"github.com/lythra/lythra/internal/modules/qrcode"
	"github.com/lythra/lythra/internal/modules/timer"
	"github.com/lythra/lythra/internal/modules/webcheck"
	"github.com/lythra/lythra/internal/registry"
)

// Module pairs a definition with its atom creator.
type Module struct {
	Definition registry.Definition
	NewAtoms   atoms.Creator
}

// Builtin returns the modules shipped with lythra.
func Builtin() []Module {
	return []Module{
		{Definition: metronome.Definition(), NewAtoms: metronome.NewAtoms},
		{Definition: qrcode.Definition(), NewAtoms: qrcode.NewAtoms},
		{Definition: timer.Definition(), NewAtoms: timer.NewAtoms},
		{Definition: webcheck.Definition(), NewAtoms: webcheck.NewAtoms},
	}
}

// Install registers every built-in module. Atom creators are registered
// first so the initialized event never precedes a usable bundle.
func Install(reg *registry.Registry, atomsReg *atoms.Registry) error {
	for _, m := range Builtin() {
		atomsReg.RegisterCreator(m.Definition.Type, m.NewAtoms)
		if err := reg.Register(m.Definition); err != nil {
			return fmt.Errorf("install %s: %w", m.Definition.Type, err)
		}
	}
	return nil
}
