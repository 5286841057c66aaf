package guest

const (
	opIf        byte = 0x04
	opEnd       byte = 0x0b
	opReturn    byte = 0x0f
	opCall      byte = 0x10
	opLocalGet  byte = 0x20
	opGlobalGet byte = 0x23
	opGlobalSet byte = 0x24
	opI32Load   byte = 0x28
	opI32Const  byte = 0x41
	opI64Const  byte = 0x42

	OpI32Eqz byte = 0x45
	OpI32Ne  byte = 0x47
	OpI32LtU byte = 0x49
	OpI64Ne  byte = 0x52
	OpI32Add byte = 0x6a
	OpI32And byte = 0x71

	blockEmpty byte = 0x40
)

// Code builds a function body one instruction at a time.
type Code struct {
	w writer
}

func (c *Code) Op(op byte) *Code {
	c.w.byte(op)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.w.byte(opLocalGet)
	c.w.u32(idx)
	return c
}

func (c *Code) GlobalGet(idx uint32) *Code {
	c.w.byte(opGlobalGet)
	c.w.u32(idx)
	return c
}

func (c *Code) GlobalSet(idx uint32) *Code {
	c.w.byte(opGlobalSet)
	c.w.u32(idx)
	return c
}

func (c *Code) Call(fn uint32) *Code {
	c.w.byte(opCall)
	c.w.u32(fn)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.byte(opI32Const)
	c.w.s32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.byte(opI64Const)
	c.w.s64(v)
	return c
}

// I32Load loads a 4-byte aligned i32 at the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code {
	c.w.byte(opI32Load)
	c.w.u32(2)
	c.w.u32(offset)
	return c
}

// If opens a block without results; close it with End.
func (c *Code) If() *Code {
	c.w.byte(opIf)
	c.w.byte(blockEmpty)
	return c
}

func (c *Code) Return() *Code {
	c.w.byte(opReturn)
	return c
}

func (c *Code) End() *Code {
	c.w.byte(opEnd)
	return c
}

// Bytes returns the body. The final End of the function must be included.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}
