//go:build cgo && moqnative

package native

// #include <stdlib.h>
// #include "moq_engine.h"
import "C"

import (
	"unsafe"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/engine"
)

const cAlloc = "c-alloc"

// cRecord owns the C memory behind one moq_config.
type cRecord struct {
	ledger *engine.Ledger
	allocs []unsafe.Pointer
}

// parseToC converts rec; the returned func frees every allocation and must
// be called exactly once, after moq_engine_create returned.
func parseToC(rec *config.Record, ledger *engine.Ledger) (C.moq_config, func()) {
	var x C.moq_config
	r := &cRecord{ledger: ledger}

	for _, f := range rec.Fields {
		switch f.Name {
		case "relayUrl":
			x.relay_url = r.str(f)
		case "clientName":
			x.client_name = r.str(f)
		case "connectTimeout":
			x.connect_timeout_ms = r.u64(f)
		case "idleTimeout":
			x.idle_timeout_ms = r.u64(f)
		case "maxSendBuffer":
			x.max_send_buffer = r.u64(f)
		case "enableDatagrams":
			x.enable_datagrams = r.flag(f)
		case "insecureSkipVerify":
			x.insecure_skip_verify = r.flag(f)
		case "tlsCertPath":
			x.tls_cert_path = r.str(f)
		case "tlsKeyPath":
			x.tls_key_path = r.str(f)
		case "tlsCaPath":
			x.tls_ca_path = r.str(f)
		case "qlogDir":
			x.qlog_dir = r.str(f)
		}
	}
	return x, r.free
}

func (r *cRecord) track(p unsafe.Pointer) unsafe.Pointer {
	r.ledger.Acquire(cAlloc, uint64(uintptr(p)))
	r.allocs = append(r.allocs, p)
	return p
}

// str returns NULL for an absent field and a C copy otherwise, "" included.
func (r *cRecord) str(f config.Field) *C.char {
	if !f.Present {
		return nil
	}
	return (*C.char)(r.track(unsafe.Pointer(C.CString(f.Str))))
}

func (r *cRecord) u64(f config.Field) *C.uint64_t {
	if !f.Present {
		return nil
	}
	p := (*C.uint64_t)(r.track(C.malloc(C.size_t(unsafe.Sizeof(C.uint64_t(0))))))
	*p = C.uint64_t(f.Uint)
	return p
}

func (r *cRecord) flag(f config.Field) *C.bool {
	if !f.Present {
		return nil
	}
	p := (*C.bool)(r.track(C.malloc(C.size_t(unsafe.Sizeof(C.bool(false))))))
	*p = C.bool(f.Bool)
	return p
}

func (r *cRecord) free() {
	for _, p := range r.allocs {
		r.ledger.Release(cAlloc, uint64(uintptr(p)))
		C.free(p)
	}
	r.allocs = nil
}
