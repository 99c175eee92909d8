package ingestion

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/parsers"
)

// BaseNodeSetName is the file name reported for the embedded base nodeset.
const BaseNodeSetName = "Opc.Ua.Minimal.NodeSet2.xml"

//go:embed base/Opc.Ua.Minimal.NodeSet2.xml
var baseNodeSet []byte

// BaseNodeSet returns a copy of the embedded minimal base nodeset.
func BaseNodeSet() []byte {
	return append([]byte(nil), baseNodeSet...)
}

// Bootstrap imports the embedded minimal base nodeset (namespace 0, alias
// "UA"): the core reference types, builtin datatypes, base object and
// variable types, modelling rules and the standard folders.
func Bootstrap(space *graph.AddressSpace) (*ImportResult, error) {
	doc, err := parsers.NewNodeSetParser().Parse(BaseNodeSetName, baseNodeSet)
	if err != nil {
		return nil, fmt.Errorf("parsing base nodeset: %w", err)
	}
	return NewImporter(space).Import(doc, graph.BaseAlias, nil)
}

// NewBootstrappedSpace returns a fresh address space with the base nodeset
// imported.
func NewBootstrappedSpace() (*graph.AddressSpace, error) {
	space := graph.NewAddressSpace()
	if _, err := Bootstrap(space); err != nil {
		return nil, err
	}
	return space, nil
}

// ImportFile parses the nodeset at path and imports it.
func (imp *Importer) ImportFile(path, alias string, dependencies []string) (*ImportResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading nodeset: %w", err)
	}
	doc, err := parsers.NewNodeSetParser().Parse(path, content)
	if err != nil {
		return nil, err
	}
	return imp.Import(doc, alias, dependencies)
}
