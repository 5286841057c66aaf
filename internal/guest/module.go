package guest

// ValType is a WebAssembly number type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// Section IDs
const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11
)

const (
	kindFunc   byte = 0x00
	kindMemory byte = 0x02

	funcTypeByte byte = 0x60
)

type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is a function import.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Func is a defined function. A non-empty Export exports it.
type Func struct {
	Export string
	Body   []byte
	Type   uint32
}

type Global struct {
	Type    ValType
	Mutable bool
	Init    int64
}

// Data is an active segment of memory 0.
type Data struct {
	Bytes  []byte
	Offset int32
}

// Module is the subset of a core module the guest engines need: function
// imports only, one memory, constant-initialized globals.
// Function indices number imports first.
type Module struct {
	Types        []FuncType
	Imports      []Import
	Funcs        []Func
	Globals      []Global
	Data         []Data
	ExportMemory string
	MemoryPages  uint32
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := &writer{}
	w.raw([]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00})

	if len(m.Types) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.byte(funcTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, sectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.name(imp.Module)
			sec.name(imp.Name)
			sec.byte(kindFunc)
			sec.u32(imp.Type)
		}
		writeSection(w, sectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.u32(f.Type)
		}
		writeSection(w, sectionFunction, sec.Bytes())
	}

	if m.MemoryPages > 0 {
		sec := &writer{}
		sec.u32(1)
		sec.byte(0x00) // no maximum
		sec.u32(m.MemoryPages)
		writeSection(w, sectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.byte(byte(g.Type))
			if g.Mutable {
				sec.byte(0x01)
			} else {
				sec.byte(0x00)
			}
			if g.Type == I64 {
				sec.byte(opI64Const)
				sec.s64(g.Init)
			} else {
				sec.byte(opI32Const)
				sec.s32(int32(g.Init))
			}
			sec.byte(opEnd)
		}
		writeSection(w, sectionGlobal, sec.Bytes())
	}

	var exports []func(*writer)
	if m.ExportMemory != "" && m.MemoryPages > 0 {
		exports = append(exports, func(sec *writer) {
			sec.name(m.ExportMemory)
			sec.byte(kindMemory)
			sec.u32(0)
		})
	}
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		name, idx := f.Export, uint32(len(m.Imports)+i)
		exports = append(exports, func(sec *writer) {
			sec.name(name)
			sec.byte(kindFunc)
			sec.u32(idx)
		})
	}
	if len(exports) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(exports)))
		for _, exp := range exports {
			exp(sec)
		}
		writeSection(w, sectionExport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			body := &writer{}
			body.u32(0) // no locals beyond params
			body.raw(f.Body)
			sec.vec(body.Bytes())
		}
		writeSection(w, sectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.u32(0) // active, memory 0
			sec.byte(opI32Const)
			sec.s32(d.Offset)
			sec.byte(opEnd)
			sec.vec(d.Bytes)
		}
		writeSection(w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *writer, id byte, data []byte) {
	w.byte(id)
	w.vec(data)
}

func writeValTypes(w *writer, types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.byte(byte(t))
	}
}
