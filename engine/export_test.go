package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/suhasHere/moqbridge/handle"
)

// GuestStatus invokes the on_status host function as the guest behind ref.
func (e *WazeroEngine) GuestStatus(ref uintptr, token handle.Token, code uint32) error {
	inst, err := e.instance(ref)
	if err != nil {
		return err
	}
	e.onStatus(context.Background(), inst.mod, []uint64{uint64(token), api.EncodeU32(code)})
	return nil
}
