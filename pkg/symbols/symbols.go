// Package symbols maps memory addresses in a target binary to function
// names and source lines, and the reverse. The mapping is loaded once
// from the binary's symbol and line tables and is read-only afterwards.
package symbols

import (
	"debug/elf"
	"debug/gosym"
	"fmt"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/go-delve/tinydbg/pkg/logflags"
)

// EntryFunction is the function the stack walk terminates on.
const EntryFunction = "main.main"

const lineCacheSize = 256

// NotFoundError is returned when an address, line or function cannot
// be resolved against the target's symbol tables.
type NotFoundError struct {
	Spec string
}

func (nfe NotFoundError) Error() string {
	return fmt.Sprintf("could not resolve %s", nfe.Spec)
}

// Location is a resolved source position.
type Location struct {
	FunctionName string
	File         string
	Line         int
}

// Table resolves addresses against the Go symbol and line tables of a
// target executable.
type Table struct {
	tab       *gosym.Table
	entryFile string
	funcs     *trie.Trie
	lineCache *lru.Cache
	logger    *logrus.Entry
}

// New loads the symbol and line tables from the executable at path.
func New(path string) (*Table, error) {
	exe, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer exe.Close()

	tab, err := parseSymbolTables(exe)
	if err != nil {
		return nil, err
	}

	t := &Table{
		tab:    tab,
		funcs:  trie.New(),
		logger: logflags.SymbolsLogger(),
	}
	t.lineCache, err = lru.New(lineCacheSize)
	if err != nil {
		return nil, err
	}

	for _, f := range tab.Funcs {
		t.funcs.Add(f.Name, f.Entry)
	}

	if fn := tab.LookupFunc(EntryFunction); fn != nil {
		t.entryFile, _, _ = tab.PCToLine(fn.Entry)
	}

	t.logger.Debugf("loaded symbols from %s, %d functions", path, len(tab.Funcs))
	return t, nil
}

func parseSymbolTables(exe *elf.File) (*gosym.Table, error) {
	var (
		symdat  []byte
		pclndat []byte
		err     error
	)

	text := exe.Section(".text")
	if text == nil {
		return nil, fmt.Errorf("could not find .text section in binary")
	}

	if sec := exe.Section(".gosymtab"); sec != nil {
		symdat, err = sec.Data()
		if err != nil {
			return nil, fmt.Errorf("could not get .gosymtab section: %v", err)
		}
	}

	sec := exe.Section(".gopclntab")
	if sec == nil {
		return nil, fmt.Errorf("could not find .gopclntab section in binary")
	}
	pclndat, err = sec.Data()
	if err != nil {
		return nil, fmt.Errorf("could not get .gopclntab section: %v", err)
	}

	pcln := gosym.NewLineTable(pclndat, text.Addr)
	tab, err := gosym.NewTable(symdat, pcln)
	if err != nil {
		return nil, fmt.Errorf("could not initialize line table: %v", err)
	}

	return tab, nil
}

// PCToLine returns the function, file and line for the given address.
func (t *Table) PCToLine(pc uint64) (Location, error) {
	if loc, ok := t.lineCache.Get(pc); ok {
		return loc.(Location), nil
	}
	file, line, fn := t.tab.PCToLine(pc)
	if fn == nil {
		return Location{}, NotFoundError{Spec: fmt.Sprintf("address %#x", pc)}
	}
	loc := Location{FunctionName: fn.Name, File: file, Line: line}
	t.lineCache.Add(pc, loc)
	return loc, nil
}

// AddrForFunction returns the entry address of the named function.
func (t *Table) AddrForFunction(name string) (uint64, error) {
	fn := t.tab.LookupFunc(name)
	if fn == nil {
		return 0, NotFoundError{Spec: fmt.Sprintf("function %s", name)}
	}
	return fn.Entry, nil
}

// AddrForLine returns the address of the first instruction of the given
// line. The line is resolved against the file containing the entry
// function, since the debugger accepts bare line numbers.
func (t *Table) AddrForLine(line int) (uint64, error) {
	if t.entryFile == "" {
		return 0, NotFoundError{Spec: fmt.Sprintf("line %d", line)}
	}
	pc, _, err := t.tab.LineToPC(t.entryFile, line)
	if err != nil {
		return 0, NotFoundError{Spec: fmt.Sprintf("line %d", line)}
	}
	return pc, nil
}

// FunctionsWithPrefix returns the names of all functions starting with
// prefix, for command line completion.
func (t *Table) FunctionsWithPrefix(prefix string) []string {
	return t.funcs.PrefixSearch(prefix)
}
